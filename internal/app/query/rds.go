package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// Snapshot is an RDS database snapshot.
type Snapshot struct {
	Identifier         string    `json:"identifier" yaml:"identifier" mapstructure:"DBSnapshotIdentifier"`
	Instance           string    `json:"instance" yaml:"instance" mapstructure:"DBInstanceIdentifier"`
	Status             string    `json:"status" yaml:"status"`
	SnapshotType       string    `json:"snapshot_type" yaml:"snapshot_type"`
	SnapshotCreateTime time.Time `json:"created" yaml:"created"`
}

// SortedSnapshots returns the snapshots whose identifier contains the
// lower-cased prefix, newest first.
func (s *Service) SortedSnapshots(ctx context.Context, region, prefix string) ([]Snapshot, error) {
	doc, err := s.run(ctx, command.ServiceRDS, "describe-db-snapshots", region)
	if err != nil {
		return nil, fmt.Errorf("failed to describe snapshots in %s: %w", region, err)
	}
	items, err := command.List("describe-db-snapshots", doc, "DBSnapshots")
	if err != nil {
		return nil, err
	}
	var all []Snapshot
	if err := command.Decode("describe-db-snapshots", items, &all); err != nil {
		return nil, err
	}

	prefix = strings.ToLower(prefix)
	var out []Snapshot
	for _, snap := range all {
		if strings.Contains(snap.Identifier, prefix) {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SnapshotCreateTime.After(out[j].SnapshotCreateTime)
	})
	return out, nil
}

// LatestSnapshot returns the newest snapshot matching prefix.
func (s *Service) LatestSnapshot(ctx context.Context, region, prefix string) (Snapshot, error) {
	snaps, err := s.SortedSnapshots(ctx, region, prefix)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, fmt.Errorf("%w: no snapshot matching %q in %s", ErrNotFound, prefix, region)
	}
	return snaps[0], nil
}
