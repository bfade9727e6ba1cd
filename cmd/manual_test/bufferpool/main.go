package main

import (
	"fmt"
	"os"

	"github.com/tuannm99/lunadb/internal"
	"github.com/tuannm99/lunadb/internal/bufferpool"
	"github.com/tuannm99/lunadb/internal/storage"
	"github.com/tuannm99/lunadb/internal/wal"
)

func main() {
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := internal.LoadConfig(cfgPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}

	dm, err := storage.NewFileDiskManager(cfg.Storage.Dir, cfg.Storage.Base, cfg.Storage.PageSize)
	if err != nil {
		fmt.Println("open disk manager:", err)
		os.Exit(1)
	}

	var lm *wal.Manager
	if cfg.Wal.Enabled {
		lm, err = wal.Open(cfg.Wal.Dir, cfg.Storage.PageSize)
		if err != nil {
			fmt.Println("open wal:", err)
			os.Exit(1)
		}
		defer func() { _ = lm.Close() }()

		if err := lm.Recover(storage.NewWALWriter(dm)); err != nil {
			fmt.Println("wal recover:", err)
			os.Exit(1)
		}
	}

	repl, err := bufferpool.NewReplacer(bufferpool.Policy(cfg.Pool.Policy), cfg.Pool.Size)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	var log bufferpool.LogManager
	if lm != nil {
		log = lm
	}
	pool := bufferpool.NewManager(cfg.Pool.Size, dm, repl, log)

	// Allocate a page, scribble into it, log the image, and unpin dirty.
	pid, frame, err := pool.NewPage()
	if err != nil {
		fmt.Println("new page:", err)
		os.Exit(1)
	}
	copy(frame.Data(), []byte("hello from lunadb"))
	if lm != nil {
		lsn, err := lm.AppendPageImage(int32(pid), frame.Data())
		if err != nil {
			fmt.Println("wal append:", err)
			os.Exit(1)
		}
		frame.SetLSN(lsn)
	}
	pool.UnpinPage(pid, true)

	// Churn through enough pages to force the first one out.
	for i := 0; i < cfg.Pool.Size+1; i++ {
		p, _, err := pool.NewPage()
		if err != nil {
			fmt.Println("new page:", err)
			os.Exit(1)
		}
		pool.UnpinPage(p, false)
	}

	// Refetch: it comes back from disk with our bytes intact.
	frame, err = pool.FetchPage(pid)
	if err != nil {
		fmt.Println("fetch page:", err)
		os.Exit(1)
	}
	fmt.Printf("page %d: %q\n", pid, string(frame.Data()[:17]))
	pool.UnpinPage(pid, false)

	if err := pool.FlushAll(); err != nil {
		fmt.Println("flush all:", err)
		os.Exit(1)
	}
	fmt.Println("done")
}
