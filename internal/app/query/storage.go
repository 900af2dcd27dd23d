package query

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// Bucket is an S3 bucket.
type Bucket struct {
	Name         string    `json:"name" yaml:"name"`
	CreationDate time.Time `json:"creation_date" yaml:"creation_date"`
}

// Buckets lists buckets whose name contains the lower-cased filter.
func (s *Service) Buckets(ctx context.Context, region, filter string) ([]Bucket, error) {
	doc, err := s.run(ctx, command.ServiceS3, "list-buckets", region)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	items, err := command.List("list-buckets", doc, "Buckets")
	if err != nil {
		return nil, err
	}
	var all []Bucket
	if err := command.Decode("list-buckets", items, &all); err != nil {
		return nil, err
	}
	filter = strings.ToLower(filter)
	var out []Bucket
	for _, b := range all {
		if b.Name != "" && strings.Contains(b.Name, filter) {
			out = append(out, b)
		}
	}
	return out, nil
}

// BucketTags returns the tag set of a bucket.
func (s *Service) BucketTags(ctx context.Context, region, bucket string) (map[string]string, error) {
	doc, err := s.run(ctx, command.ServiceS3, "get-bucket-tagging", region, command.Opt("bucket", bucket))
	if err != nil {
		return nil, fmt.Errorf("failed to get tags of %s: %w", bucket, err)
	}
	items, err := command.List("get-bucket-tagging", doc, "TagSet")
	if err != nil {
		return nil, err
	}
	var tags []Tag
	if err := command.Decode("get-bucket-tagging", items, &tags); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key != "" {
			out[t.Key] = t.Value
		}
	}
	return out, nil
}

// TagBucket replaces a bucket's tag set with a single tag. Bucket tagging
// cannot be dry-run natively; a dry run returns a *command.DryRunError.
func (s *Service) TagBucket(ctx context.Context, region, bucket, key, value string, dryRun bool) error {
	tagging := fmt.Sprintf(`{"TagSet": [{"Key": %q, "Value": %q}]}`, key, value)
	_, err := s.mutate(ctx, command.ServiceS3, "put-bucket-tagging", region, dryRun,
		command.Opt("bucket", bucket), command.Opt("tagging", tagging))
	return err
}

// BackupSet is a backup bucket with its OWNER and UPDATED tags.
type BackupSet struct {
	Bucket  string `json:"bucket" yaml:"bucket"`
	Owner   string `json:"owner" yaml:"owner"`
	Updated string `json:"updated" yaml:"updated"`
}

// BackupSets lists buckets under envroot whose OWNER tag contains owner, in
// ascending UPDATED order. An empty owner keeps every bucket. Buckets with
// no tag set are skipped.
func (s *Service) BackupSets(ctx context.Context, region, envroot, owner string) ([]BackupSet, error) {
	buckets, err := s.Buckets(ctx, region, envroot)
	if err != nil {
		return nil, err
	}
	var out []BackupSet
	for _, b := range buckets {
		tags, err := s.BucketTags(ctx, region, b.Name)
		if err != nil {
			var dep *command.DependencyError
			if errors.As(err, &dep) && strings.Contains(dep.Stderr, "NoSuchTagSet") {
				continue
			}
			return nil, err
		}
		set := BackupSet{Bucket: b.Name, Owner: tags["OWNER"], Updated: tags["UPDATED"]}
		if owner == "" || (set.Owner != "" && strings.Contains(set.Owner, owner)) {
			out = append(out, set)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Updated < out[j].Updated })
	return out, nil
}

// ArtifactPath locates published artifact versions of a branch.
type ArtifactPath struct {
	Bucket string
	Key    string
	Kind   string
	Branch string
}

// DefaultArtifactPath holds the conventional bucket layout.
var DefaultArtifactPath = ArtifactPath{Bucket: "dreambox-deployment-files", Key: "Nexus", Kind: "releases"}

// Prefix is the object prefix that holds one folder per version.
func (p ArtifactPath) Prefix() string {
	return fmt.Sprintf("%s/%s/com/dreambox/dbl-%s-main/", p.Key, p.Kind, p.Branch)
}

// ArtifactVersions lists the versions published under an artifact path,
// highest first.
func (s *Service) ArtifactVersions(ctx context.Context, region string, p ArtifactPath) ([]string, error) {
	if p.Branch == "" {
		return nil, fmt.Errorf("branch is required")
	}
	doc, err := s.run(ctx, command.ServiceS3, "list-objects-v2", region,
		command.Opt("bucket", p.Bucket),
		command.Opt("prefix", p.Prefix()),
		command.Opt("delimiter", "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to list s3://%s/%s: %w", p.Bucket, p.Prefix(), err)
	}

	var listing struct {
		CommonPrefixes []struct {
			Prefix string
		}
	}
	if doc != nil {
		if err := command.Decode("list-objects-v2", doc, &listing); err != nil {
			return nil, err
		}
	}

	var versions []string
	for _, cp := range listing.CommonPrefixes {
		if v := path.Base(strings.TrimSuffix(cp.Prefix, "/")); v != "" && v != "." {
			versions = append(versions, v)
		}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	return versions, nil
}

// compareVersions orders loose version strings such as 2.10.1 or 3.0b2 by
// splitting them into numeric and alphabetic components.
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			if c := strings.Compare(pa[i], pb[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

func versionParts(v string) []string {
	var parts []string
	var cur strings.Builder
	digit := false
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, r := range v {
		switch {
		case r == '.' || r == '-' || r == '_':
			flush()
		case unicode.IsDigit(r) != digit && cur.Len() > 0:
			flush()
			fallthrough
		default:
			digit = unicode.IsDigit(r)
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}
