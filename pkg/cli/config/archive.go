package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/urfave/cli/v3"
)

type Archive struct {
	baseDir string
	naming  string
}

func (x *Archive) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-dir",
			Category:    "archive",
			Aliases:     []string{"d"},
			Sources:     cli.EnvVars("MAGPIE_BASE_DIR"),
			Usage:       "Directory that receives recorded session documents",
			Value:       "traindata",
			Destination: &x.baseDir,
		},
		&cli.StringFlag{
			Name:        "naming",
			Category:    "archive",
			Sources:     cli.EnvVars("MAGPIE_NAMING"),
			Usage:       "File naming policy [user|global]",
			Value:       "user",
			Destination: &x.naming,
		},
	}
}

func (x Archive) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_dir", x.baseDir),
		slog.String("naming", x.naming),
	)
}

func (x *Archive) Naming() (archive.Naming, error) {
	switch x.naming {
	case "user":
		return archive.NewUserNaming(), nil
	case "global":
		return archive.NewGlobalNaming(), nil
	default:
		return nil, goerr.New("unknown naming policy", goerr.V("naming", x.naming))
	}
}

func (x *Archive) Configure() (*archive.Allocator, error) {
	if x.baseDir == "" {
		return nil, goerr.New("base directory is required")
	}

	naming, err := x.Naming()
	if err != nil {
		return nil, err
	}

	return archive.NewAllocator(x.baseDir, naming), nil
}
