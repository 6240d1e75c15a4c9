package menu

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is the YAML document loaded by cmd/seed.
type SeedFile struct {
	Items []ItemInput `yaml:"items"`
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(r io.Reader) ([]ItemInput, error) {
	var file SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode menu seed: %w", err)
	}
	for i, item := range file.Items {
		if err := item.validate(); err != nil {
			return nil, fmt.Errorf("menu seed item %d (%s): %w", i, item.Name, err)
		}
	}
	return file.Items, nil
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Created int
	Skipped int
}

// Seed inserts items that are not yet on the menu, keyed by name and size.
// Existing rows are left alone so admin edits survive reseeding.
func (s *Service) Seed(ctx context.Context, items []ItemInput) (SeedResult, error) {
	var result SeedResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, input := range items {
			item := input.toModel()
			_, err := repo.FindByNameAndSize(ctx, item.Name, item.Size)
			if err == nil {
				result.Skipped++
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := repo.Create(ctx, item); err != nil {
				return fmt.Errorf("create %s: %w", item.Name, err)
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"created": result.Created, "skipped": result.Skipped}), "menu seeded")
	return result, nil
}
