package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	offersFilename = "offers.json"
	trustFilename  = "trust_edges.json"
	dealsFilename  = "deals.json"
)

// SaveState writes the offer index, trust edges, and deals to JSON files
// under dataDir.
func (node *HubNode) SaveState(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := saveJSONFile(filepath.Join(dataDir, offersFilename), node.Offers.Snapshot()); err != nil {
		return err
	}
	if err := saveJSONFile(filepath.Join(dataDir, trustFilename), node.Trust.Snapshot()); err != nil {
		return err
	}
	if err := saveJSONFile(filepath.Join(dataDir, dealsFilename), node.Escrow.Snapshot()); err != nil {
		return err
	}

	logger.Info("Persisted hub state",
		"dataDir", dataDir,
		"offers", node.Offers.Count(),
		"trustEdges", node.Trust.EdgeCount(),
		"deals", node.Escrow.DealCount())
	return nil
}

// LoadState restores store state from dataDir. Missing files are not an
// error; the node starts empty.
func (node *HubNode) LoadState(dataDir string) error {
	var offers []Offer
	if ok, err := loadJSONFile(filepath.Join(dataDir, offersFilename), &offers); err != nil {
		return err
	} else if ok {
		node.Offers.Restore(offers)
	}

	var edges []TrustEdge
	if ok, err := loadJSONFile(filepath.Join(dataDir, trustFilename), &edges); err != nil {
		return err
	} else if ok {
		node.Trust.Restore(edges)
	}

	var deals []Deal
	if ok, err := loadJSONFile(filepath.Join(dataDir, dealsFilename), &deals); err != nil {
		return err
	} else if ok {
		node.Escrow.Restore(deals)
	}

	UpdateStoreGauges(node.Offers.Count(), node.Trust.EdgeCount())
	if logger != nil {
		logger.Info("Loaded hub state",
			"dataDir", dataDir,
			"offers", node.Offers.Count(),
			"trustEdges", node.Trust.EdgeCount(),
			"deals", node.Escrow.DealCount())
	}
	return nil
}

func saveJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadJSONFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
