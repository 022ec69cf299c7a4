package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paperqa/internal/corpus"
	"paperqa/internal/vectorindex"
	"paperqa/internal/vectorindex/pgvector"
	"paperqa/internal/vectorindex/qdrant"
)

var forceBuild bool

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the vector index and manifest from the embedding shards",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		vectors, manifest, err := corpus.CollectEmbeddings(cfg.Corpus.EmbeddingsDir)
		if err != nil {
			return fmt.Errorf("collect embeddings: %w", err)
		}
		logger.Info("collected embeddings", "documents", len(vectors))

		written, err := corpus.SyncManifest(cfg.Corpus.Manifest, manifest, forceBuild)
		if errors.Is(err, corpus.ErrManifestMismatch) {
			return fmt.Errorf("%w; use --force to replace it", err)
		}
		if err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		if !written {
			logger.Info("manifest already matches the embeddings", "path", cfg.Corpus.Manifest)
		}

		switch cfg.Index.Type {
		case "flat", "hnsw":
			if _, err := os.Stat(cfg.Index.Path); err == nil && !forceBuild {
				return fmt.Errorf("index %s already exists; use --force to rebuild", cfg.Index.Path)
			}
			idx, err := vectorindex.Build(vectors, localIndexConfig(cfg))
			if err != nil {
				return err
			}
			if err := idx.Save(cfg.Index.Path); err != nil {
				return err
			}
		case "qdrant":
			if _, err := qdrant.Build(ctx, qdrantConfig(cfg), vectors); err != nil {
				return err
			}
		case "pgvector":
			pc, err := pgvectorConfig(cfg)
			if err != nil {
				return err
			}
			idx, err := pgvector.Build(ctx, pc, vectors)
			if err != nil {
				return err
			}
			idx.Close()
		default:
			return fmt.Errorf("unknown index: %s", cfg.Index.Type)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (%s)\n", len(vectors), cfg.Index.Type)
		return nil
	},
}

func init() {
	buildIndexCmd.Flags().BoolVar(&forceBuild, "force", false, "Replace an existing manifest and index")
}
