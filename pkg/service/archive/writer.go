package archive

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
)

// Writer persists session documents with create-exclusive semantics.
// A name collision at write time means the allocator's uniqueness
// guarantee was broken and must never silently overwrite.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write encodes the document and creates it at the target path. It
// returns the number of bytes written. The target file must not exist.
func (w *Writer) Write(ctx context.Context, target recording.Target, doc *recording.Document) (int, error) {
	data, err := doc.Encode()
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(target.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return 0, goerr.Wrap(err, "output file already exists",
				goerr.V("path", target.Path), goerr.T(errs.TagInvariant))
		}
		return 0, goerr.Wrap(err, "failed to create output file",
			goerr.V("path", target.Path), goerr.T(errs.TagPersistence))
	}

	n, err := f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(target.Path)
		return 0, goerr.Wrap(err, "failed to write output file",
			goerr.V("path", target.Path), goerr.T(errs.TagPersistence))
	}

	if err := f.Close(); err != nil {
		return n, goerr.Wrap(err, "failed to close output file",
			goerr.V("path", target.Path), goerr.T(errs.TagPersistence))
	}
	return n, nil
}
