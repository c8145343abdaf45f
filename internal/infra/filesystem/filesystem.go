package filesystem

type (
	// Reader loads the JSON documents the tool keeps on disk: the deployments
	// manifest, run state, legacy exports and compiled artifacts.
	Reader interface {
		ReadJSON(path string, target any) error
		Exists(path string) (bool, error)
	}

	// Writer persists documents atomically so a crash never leaves a torn file.
	Writer interface {
		WriteJSON(path string, data any) error
		WriteBytes(path string, data []byte) error
	}
)
