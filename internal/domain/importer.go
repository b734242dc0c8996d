package domain

// ImporterDescriptor describes a user-registered importer plugin.
// Descriptors are identified and ordered by Name.
type ImporterDescriptor struct {
	// Name is the display name and the identity of the importer.
	Name string `json:"name" validate:"required,max=200"`

	// PluginID is the exported symbol that provides the importer.
	PluginID string `json:"plugin_id" validate:"required,max=200"`

	// BasePath is the filesystem path of the plugin file.
	BasePath string `json:"base_path" validate:"required"`
}

// Record returns the descriptor as a fixed-width record.
func (d ImporterDescriptor) Record() []string {
	return []string{d.Name, d.PluginID, d.BasePath}
}

// ImporterDescriptorFromRecord builds a descriptor from a fixed-width record.
func ImporterDescriptorFromRecord(record []string) (ImporterDescriptor, error) {
	if len(record) != 3 {
		return ImporterDescriptor{}, NewValidationError("record", "importer record must have exactly 3 fields")
	}
	return ImporterDescriptor{
		Name:     record[0],
		PluginID: record[1],
		BasePath: record[2],
	}, nil
}
