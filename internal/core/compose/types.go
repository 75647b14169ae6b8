package compose

// File is one container-definition file of a file set.
type File struct {
	Name    string
	Content []byte
}

// Description summarizes a merged file set.
type Description struct {
	Project  string
	Services []Service
}

// Service is one declared service.
type Service struct {
	Name  string
	Image string
	Build bool
	// Published holds the host port ranges the service publishes, e.g. "3100" or "3100-3102".
	Published []string
}

// ServiceNames returns the declared service names in file-set order.
func (d *Description) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return names
}
