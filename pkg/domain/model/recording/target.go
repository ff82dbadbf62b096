package recording

// Target identifies the archive location reserved for a session
// document before any data is written to it.
type Target struct {
	// Dir is the scope directory the document will be written into
	Dir string

	// File is the allocated file name within Dir
	File string

	// Path is filepath.Join(Dir, File), kept for convenience
	Path string

	// Seq is the sequence number embedded in File
	Seq int
}
