package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdList() *cli.Command {
	var baseDir string

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List recorded session documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "base-dir",
				Aliases:     []string{"d"},
				Sources:     cli.EnvVars("MAGPIE_BASE_DIR"),
				Usage:       "Directory that holds recorded session documents",
				Value:       "traindata",
				Destination: &baseDir,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := os.Stat(baseDir); os.IsNotExist(err) {
				fmt.Println("no documents")
				return nil
			}

			var total int
			err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(path, ".json") {
					return nil
				}

				raw, err := os.ReadFile(filepath.Clean(path))
				if err != nil {
					return goerr.Wrap(err, "failed to read document", goerr.V("path", path))
				}

				var doc recording.Document
				if err := json.Unmarshal(raw, &doc); err != nil {
					logging.From(ctx).Warn("skipping unreadable document",
						"path", path, "error", err)
					return nil
				}
				if err := doc.SessionID.Validate(); err != nil {
					logging.From(ctx).Warn("skipping document with invalid session ID",
						"path", path, "error", err)
					return nil
				}

				total++
				fmt.Printf("%s\t%s\t%d points\t%s\n",
					path, doc.SessionID, doc.TotalDataPoints,
					humanize.Bytes(uint64(len(raw))))
				return nil
			})
			if err != nil {
				return goerr.Wrap(err, "failed to walk base directory", goerr.V("dir", baseDir))
			}

			fmt.Printf("%d documents\n", total)
			return nil
		},
	}
}
