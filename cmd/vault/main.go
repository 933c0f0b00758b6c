package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/anchor"
	"github.com/merklevault/merklevault/pkg/anchor/badger"
	"github.com/merklevault/merklevault/pkg/anchor/memory"
	"github.com/merklevault/merklevault/pkg/anchor/redis"
	"github.com/merklevault/merklevault/pkg/client"
	"github.com/merklevault/merklevault/pkg/config"
	"github.com/merklevault/merklevault/pkg/logger"
	"github.com/merklevault/merklevault/pkg/merkle"
	"github.com/merklevault/merklevault/pkg/util"
)

func main() {
	app := &cli.App{
		Name:  "vault",
		Usage: "Merkle vault client",
		Description: `Uploads file batches to a vault server, keeps the merkle root hash as a
local trust anchor, and verifies every downloaded file against it.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "Vault server base URL",
				EnvVars: []string{config.EnvServerURL},
			},
			&cli.StringFlag{
				Name:    "anchor-backend",
				Value:   "badger",
				Usage:   "Trust anchor storage backend: memory, badger, redis",
				EnvVars: []string{config.EnvAnchorBackend},
			},
			&cli.StringFlag{
				Name:    "anchor-path",
				Value:   defaultAnchorPath(),
				Usage:   "Data directory for the badger anchor backend",
				EnvVars: []string{config.EnvAnchorPath},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address (host:port) for the redis anchor backend",
				EnvVars: []string{config.EnvRedisAddr},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "Upload all files in a directory and anchor the merkle root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "files-dir",
						Aliases:  []string{"d"},
						Usage:    "Directory whose files form the batch (lexicographic order)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "root-out",
						Usage: "Also write the bare merkle root hash to this file",
					},
				},
				Action: runUpload,
			},
			{
				Name:  "download",
				Usage: "Download one file and verify it against the anchored root",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Leaf index of the file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the file here instead of stdout",
					},
					&cli.StringFlag{
						Name:  "batch",
						Usage: "Verify against this anchored batch instead of the latest",
					},
					&cli.BoolFlag{
						Name:  "no-verify",
						Usage: "Skip merkle verification (unsafe)",
					},
				},
				Action: runDownload,
			},
			{
				Name:  "proof",
				Usage: "Fetch the merkle proof for one file",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Leaf index of the file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the proof JSON here instead of stdout",
					},
				},
				Action: runProof,
			},
			{
				Name:  "build",
				Usage: "Build a merkle tree over a local directory without a server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "files-dir",
						Aliases:  []string{"d"},
						Usage:    "Directory whose files form the batch (lexicographic order)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "tree-out",
						Usage: "Write the serialized tree JSON to this file",
					},
				},
				Action: runBuild,
			},
			{
				Name:  "verify",
				Usage: "Verify a local file against a merkle root using a proof file",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Leaf index of the file in its batch",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path of the file to verify",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "proof",
						Usage:    "Path to a proof JSON file (as written by the proof command)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "root",
						Usage: "Expected merkle root hash (hex); requires --leaf-count",
					},
					&cli.IntFlag{
						Name:  "leaf-count",
						Usage: "Number of files in the batch (with --root)",
					},
					&cli.StringFlag{
						Name:  "batch",
						Usage: "Verify against this anchored batch instead of the latest",
					},
				},
				Action: runVerify,
			},
			{
				Name:   "anchors",
				Usage:  "List locally stored trust anchors",
				Action: runAnchors,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func defaultAnchorPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".merklevault/anchors"
	}
	return filepath.Join(home, ".merklevault", "anchors")
}

func buildConfig(c *cli.Context) (*config.ClientConfig, error) {
	backend, err := config.ParseAnchorBackend(c.String("anchor-backend"))
	if err != nil {
		return nil, err
	}
	cfg := &config.ClientConfig{
		ServerURL:     c.String("server-url"),
		AnchorBackend: backend,
		AnchorPath:    c.String("anchor-path"),
		RedisAddr:     c.String("redis-addr"),
		Debug:         c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func buildLogger(c *cli.Context) (*zap.Logger, error) {
	if !c.Bool("verbose") {
		// Keep command output clean unless asked for.
		return zap.NewNop(), nil
	}
	return logger.NewLogger(&logger.LoggerConfig{Debug: true})
}

// setup wires the config, logger and HTTP client shared by all commands.
func setup(c *cli.Context) (*config.ClientConfig, *zap.Logger, *client.Client, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	l, err := buildLogger(c)
	if err != nil {
		return nil, nil, nil, err
	}
	vc, err := client.NewClient(cfg, l)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, l, vc, nil
}

// openAnchorStore selects the anchor store backend from the config.
func openAnchorStore(cfg *config.ClientConfig, l *zap.Logger) (anchor.IAnchorStore, error) {
	switch cfg.AnchorBackend {
	case config.AnchorBackendMemory:
		return memory.NewMemoryStore(), nil
	case config.AnchorBackendBadger:
		return badger.NewBadgerStore(cfg.AnchorPath, l)
	case config.AnchorBackendRedis:
		return redis.NewRedisStore(&redis.RedisConfig{Address: cfg.RedisAddr}, l)
	default:
		return nil, fmt.Errorf("unsupported anchor backend: %s", cfg.AnchorBackend)
	}
}

// loadAnchor returns the anchor named by --batch, or the latest one.
func loadAnchor(c *cli.Context, store anchor.IAnchorStore) (*anchor.Anchor, error) {
	var a *anchor.Anchor
	var err error
	if batchID := c.String("batch"); batchID != "" {
		a, err = store.LoadAnchor(batchID)
	} else {
		a, err = store.LatestAnchor()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trust anchor: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("no trust anchor found; upload first or pass --root")
	}
	return a, nil
}

func runUpload(c *cli.Context) error {
	cfg, l, vc, err := setup(c)
	if err != nil {
		return err
	}

	names, files, err := util.ReadFilesFromDir(c.String("files-dir"))
	if err != nil {
		return fmt.Errorf("failed to read upload directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := vc.Upload(ctx, files)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	store, err := openAnchorStore(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open anchor store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveAnchor(&anchor.Anchor{
		BatchID:   result.BatchID,
		ServerURL: cfg.ServerURL,
		RootHash:  result.MerkleRootHash,
		LeafCount: result.LeafCount,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upload succeeded but anchoring the root failed: %w", err)
	}

	if out := c.String("root-out"); out != "" {
		if err := os.WriteFile(out, []byte(result.MerkleRootHash+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write root hash file: %w", err)
		}
	}

	fmt.Printf("Uploaded %d files\n", len(files))
	for i, name := range names {
		fmt.Printf("  [%d] %s\n", i, name)
	}
	fmt.Printf("Batch ID:    %s\n", result.BatchID)
	fmt.Printf("Merkle root: %s\n", result.MerkleRootHash)
	return nil
}

func runDownload(c *cli.Context) error {
	idx := c.Int("index")

	cfg, l, vc, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var data []byte
	if c.Bool("no-verify") {
		data, err = vc.Download(ctx, idx)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
	} else {
		store, err := openAnchorStore(cfg, l)
		if err != nil {
			return fmt.Errorf("failed to open anchor store: %w", err)
		}
		defer func() { _ = store.Close() }()

		a, err := loadAnchor(c, store)
		if err != nil {
			return err
		}

		data, err = vc.DownloadVerified(ctx, idx, a.LeafCount, a.RootHash)
		if err != nil {
			return fmt.Errorf("verified download failed: %w", err)
		}
	}

	if out := c.String("output"); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runProof(c *cli.Context) error {
	_, _, vc, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := vc.GetProof(ctx, c.Int("index"))
	if err != nil {
		return fmt.Errorf("failed to fetch proof: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}
	data = append(data, '\n')

	if out := c.String("output"); out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write proof file: %w", err)
		}
		fmt.Printf("Wrote proof for index %d to %s\n", c.Int("index"), out)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runBuild(c *cli.Context) error {
	names, files, err := util.ReadFilesFromDir(c.String("files-dir"))
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	tree, err := merkle.Build(files)
	if err != nil {
		return fmt.Errorf("failed to build merkle tree: %w", err)
	}

	if out := c.String("tree-out"); out != "" {
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize tree: %w", err)
		}
		if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write tree file: %w", err)
		}
	}

	for i, name := range names {
		fmt.Printf("  [%d] %s\n", i, name)
	}
	fmt.Printf("Leaf count:  %d\n", tree.LeafCount)
	fmt.Printf("Merkle root: %s\n", tree.RootHash())
	return nil
}

func runVerify(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	proofData, err := os.ReadFile(c.String("proof"))
	if err != nil {
		return fmt.Errorf("failed to read proof file: %w", err)
	}

	// Accept either a bare proof array or the proof command's full output.
	var proof merkle.Proof
	if err := json.Unmarshal(proofData, &proof); err != nil {
		var wrapped struct {
			Proof merkle.Proof `json:"proof"`
		}
		if err := json.Unmarshal(proofData, &wrapped); err != nil {
			return fmt.Errorf("failed to parse proof file: %w", err)
		}
		proof = wrapped.Proof
	}

	rootHash := c.String("root")
	leafCount := c.Int("leaf-count")
	if rootHash == "" {
		cfg, err := buildConfig(c)
		if err != nil {
			return err
		}
		l, err := buildLogger(c)
		if err != nil {
			return err
		}
		store, err := openAnchorStore(cfg, l)
		if err != nil {
			return fmt.Errorf("failed to open anchor store: %w", err)
		}
		defer func() { _ = store.Close() }()

		a, err := loadAnchor(c, store)
		if err != nil {
			return err
		}
		rootHash = a.RootHash
		leafCount = a.LeafCount
	} else if leafCount <= 0 {
		return fmt.Errorf("--leaf-count is required when verifying against an explicit --root")
	}

	ok, err := merkle.Verify(data, c.Int("index"), leafCount, proof, rootHash)
	if err != nil || !ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Verification error: %v\n", err)
		}
		return fmt.Errorf("verification FAILED: do not trust this file")
	}
	fmt.Println("Verification OK")
	return nil
}

func runAnchors(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}
	l, err := buildLogger(c)
	if err != nil {
		return err
	}

	store, err := openAnchorStore(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open anchor store: %w", err)
	}
	defer func() { _ = store.Close() }()

	anchors, err := store.ListAnchors()
	if err != nil {
		return fmt.Errorf("failed to list anchors: %w", err)
	}
	if len(anchors) == 0 {
		fmt.Println("No trust anchors stored")
		return nil
	}

	for _, a := range anchors {
		fmt.Printf("%s  %s  leaves=%d  %s\n",
			a.CreatedAt.Format(time.RFC3339), a.BatchID, a.LeafCount, a.RootHash)
	}
	return nil
}
