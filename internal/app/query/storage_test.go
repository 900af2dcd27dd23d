package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

const bucketsResponse = `{"Buckets": [
	{"Name": "01west-backup-databag", "CreationDate": "2023-01-01T00:00:00.000Z"},
	{"Name": "02west-backup-databag", "CreationDate": "2023-02-01T00:00:00.000Z"},
	{"Name": "03west-backup-databag", "CreationDate": "2023-03-01T00:00:00.000Z"},
	{"Name": "deployment-files", "CreationDate": "2022-01-01T00:00:00.000Z"}
]}`

func TestBuckets(t *testing.T) {
	exec := newFakeExec().on("s3api list-buckets", bucketsResponse)

	got, err := NewService(exec, "").Buckets(context.Background(), "us-west-2", "Backup-Databag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(got))
	}
	if got[0].CreationDate.Year() != 2023 {
		t.Errorf("expected creation date decoded, got %v", got[0].CreationDate)
	}
}

func TestBucketTags(t *testing.T) {
	exec := newFakeExec().on("s3api get-bucket-tagging",
		`{"TagSet": [{"Key": "OWNER", "Value": "ops"}, {"Key": "UPDATED", "Value": "2024-01-02"}]}`)

	got, err := NewService(exec, "").BucketTags(context.Background(), "us-west-2", "01west-backup-databag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"OWNER": "ops", "UPDATED": "2024-01-02"}, got); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

// taggedExec answers list-buckets and per-bucket tagging.
func taggedExec(tags map[string]string) command.Executor {
	base := newFakeExec().on("s3api list-buckets", bucketsResponse)
	return command.ExecutorFunc(func(ctx context.Context, req command.Request) (command.Document, error) {
		if req.Operation != "get-bucket-tagging" {
			return base.Execute(ctx, req)
		}
		bucket, _ := req.Options.Get("bucket")
		body, ok := tags[bucket]
		if !ok {
			return nil, &command.DependencyError{Command: "aws s3api get-bucket-tagging", Status: 254,
				Stderr: "An error occurred (NoSuchTagSet) when calling the GetBucketTagging operation"}
		}
		f := newFakeExec().on("s3api get-bucket-tagging", body)
		return f.Execute(ctx, req)
	})
}

func TestBackupSets(t *testing.T) {
	exec := taggedExec(map[string]string{
		"01west-backup-databag": `{"TagSet": [{"Key": "OWNER", "Value": "stage3-ops"}, {"Key": "UPDATED", "Value": "2024-03-01"}]}`,
		"02west-backup-databag": `{"TagSet": [{"Key": "OWNER", "Value": "stage4-ops"}, {"Key": "UPDATED", "Value": "2024-01-01"}]}`,
	})

	got, err := NewService(exec, "").BackupSets(context.Background(), "us-west-2", "west-backup-databag", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BackupSet{
		{Bucket: "02west-backup-databag", Owner: "stage4-ops", Updated: "2024-01-01"},
		{Bucket: "01west-backup-databag", Owner: "stage3-ops", Updated: "2024-03-01"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backup sets mismatch (-want +got):\n%s", diff)
	}

	owned, err := NewService(exec, "").BackupSets(context.Background(), "us-west-2", "west-backup-databag", "stage3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(owned) != 1 || owned[0].Bucket != "01west-backup-databag" {
		t.Errorf("expected only the stage3 backup, got %+v", owned)
	}
}

func TestTagBucket(t *testing.T) {
	var got command.Request
	exec := command.ExecutorFunc(func(_ context.Context, req command.Request) (command.Document, error) {
		got = req
		return nil, nil
	})

	if err := NewService(exec, "").TagBucket(context.Background(), "us-west-2", "b", "OWNER", "ops", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tagging, _ := got.Options.Get("tagging")
	if tagging != `{"TagSet": [{"Key": "OWNER", "Value": "ops"}]}` {
		t.Errorf("unexpected tagging %s", tagging)
	}
}

func TestArtifactVersions(t *testing.T) {
	exec := newFakeExec().on("s3api list-objects-v2", `{"CommonPrefixes": [
		{"Prefix": "Nexus/releases/com/dreambox/dbl-galactus-main/2.9/"},
		{"Prefix": "Nexus/releases/com/dreambox/dbl-galactus-main/2.10/"},
		{"Prefix": "Nexus/releases/com/dreambox/dbl-galactus-main/2.2.1/"},
		{"Prefix": "Nexus/releases/com/dreambox/dbl-galactus-main/10.0/"}
	]}`)

	p := DefaultArtifactPath
	p.Branch = "galactus"
	got, err := NewService(exec, "").ArtifactVersions(context.Background(), "us-east-1", p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"10.0", "2.10", "2.9", "2.2.1"}, got); diff != "" {
		t.Errorf("versions mismatch (-want +got):\n%s", diff)
	}

	prefix, _ := exec.requests[0].Options.Get("prefix")
	if prefix != "Nexus/releases/com/dreambox/dbl-galactus-main/" {
		t.Errorf("unexpected prefix %s", prefix)
	}
}

func TestArtifactVersions_Empty(t *testing.T) {
	exec := newFakeExec().on("s3api list-objects-v2", `{"KeyCount": 0}`)

	got, err := NewService(exec, "").ArtifactVersions(context.Background(), "us-east-1",
		ArtifactPath{Bucket: "b", Key: "Nexus", Kind: "releases", Branch: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no versions, got %v", got)
	}
}

func TestArtifactVersions_RequiresBranch(t *testing.T) {
	if _, err := NewService(newFakeExec(), "").ArtifactVersions(context.Background(), "us-east-1", DefaultArtifactPath); err == nil {
		t.Error("expected error without branch")
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.10", "2.9", 1},
		{"1.0", "1.0", 0},
		{"1.0", "1.0.1", -1},
		{"3.0b2", "3.0b1", 1},
		{"3.0", "3.a", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, expected %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBuckets_Failure(t *testing.T) {
	exec := newFakeExec()
	exec.errs["s3api list-buckets"] = &command.DependencyError{Command: "aws s3api list-buckets", Status: 255}

	if _, err := NewService(exec, "").Buckets(context.Background(), "us-east-1", ""); !errors.Is(err, command.ErrDependencyFailure) {
		t.Errorf("expected dependency failure, got %v", err)
	}
}
