package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"samplemind/config"
	"samplemind/utils"

	"github.com/mdobak/go-xerrors"
)

const usage = `usage: samplemind <command> [flags]

commands:
  analyze <path>              extract a feature record
  batch <dir|files...>        analyze many files in parallel
  ai <path>                   LLM analysis of a file's features
  providers [list|enable|disable|priority]
  compare <a> <b>             similarity between two files
  similar <path>              nearest neighbours in a sample library index
  index <export.json>         add exported records to a library index
  cache [stats|clear|purge]   inspect or empty the feature and response caches
  serve                       HTTP and socket.io server`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	cfg := config.Load()
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "analyze":
		err = analyzeCmd(ctx, cfg, os.Args[2:])
	case "batch":
		err = batchCmd(ctx, cfg, os.Args[2:])
	case "ai":
		err = aiCmd(ctx, cfg, os.Args[2:])
	case "providers":
		err = providersCmd(ctx, cfg, os.Args[2:])
	case "compare":
		err = compareCmd(ctx, cfg, os.Args[2:])
	case "similar":
		err = similarCmd(ctx, cfg, os.Args[2:])
	case "index":
		err = indexCmd(ctx, cfg, os.Args[2:])
	case "cache":
		err = cacheCmd(ctx, cfg, os.Args[2:])
	case "serve":
		err = serveCmd(ctx, cfg, os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		utils.GetLogger().ErrorContext(ctx, "command failed",
			slog.String("command", os.Args[1]), slog.Any("error", xerrors.New(err)))
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
}
