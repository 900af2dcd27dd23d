package command

import (
	"errors"
	"testing"
	"time"
)

func TestRequest_Args(t *testing.T) {
	req := Request{
		Service:   ServiceCloudFormation,
		Operation: "describe-stacks",
		Region:    "us-west-2",
		Profile:   "ops",
		Options:   Options{Opt("stack_name", "stage1"), Opt("query", "Stacks[].StackName")},
	}

	got := req.CommandLine("aws")
	want := "aws --profile ops --region us-west-2 cloudformation describe-stacks --stack-name stage1 --query Stacks[].StackName"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRequest_ArgsWithoutProfile(t *testing.T) {
	req := Request{
		Service:   ServiceEC2,
		Operation: "describe-regions",
		Region:    "us-east-1",
		Options:   Options{Opt("all_regions", "")},
	}

	got := req.CommandLine("aws")
	want := "aws --region us-east-1 ec2 describe-regions --all-regions"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{
			name: "allowed",
			req: Request{Service: ServiceRDS, Operation: "describe-db-snapshots", Region: "us-east-1",
				Options: Options{Opt("db_instance_identifier", "stage1")}},
		},
		{
			name: "hyphenated option name",
			req: Request{Service: ServiceRDS, Operation: "describe-db-snapshots", Region: "us-east-1",
				Options: Options{Opt("db-instance-identifier", "stage1")}},
		},
		{
			name:    "unknown operation",
			req:     Request{Service: ServiceEC2, Operation: "terminate-instances", Region: "us-east-1"},
			wantErr: ErrUnknownOperation,
		},
		{
			name:    "unknown service",
			req:     Request{Service: "iam", Operation: "list-users", Region: "us-east-1"},
			wantErr: ErrUnknownOperation,
		},
		{
			name: "unknown option",
			req: Request{Service: ServiceEC2, Operation: "describe-instances", Region: "us-east-1",
				Options: Options{Opt("user_data", "x")}},
			wantErr: ErrUnknownOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequest_ValidateMissingRegion(t *testing.T) {
	req := Request{Service: ServiceSTS, Operation: "get-caller-identity"}
	if err := req.Validate(); err == nil {
		t.Error("expected error for missing region")
	}
}

func TestOptions_GetAndWithout(t *testing.T) {
	opts := Options{Opt("stack_name", "stage1"), Opt("query", "x")}

	if v, ok := opts.Get("stack-name"); !ok || v != "stage1" {
		t.Errorf("expected stage1, got %q (%v)", v, ok)
	}
	rest := opts.Without("query")
	if len(rest) != 1 || rest[0].Name != "stack_name" {
		t.Errorf("expected only stack_name left, got %v", rest)
	}
	if len(opts) != 2 {
		t.Errorf("Without modified the receiver: %v", opts)
	}
}

func TestLookup_Mutating(t *testing.T) {
	spec, err := Lookup(ServiceCloudFormation, "create-stack")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !spec.Mutating {
		t.Error("expected create-stack to be mutating")
	}
	if ServiceCloudFormation.NativeDryRun() {
		t.Error("cloudformation has no native dry run")
	}
	if !ServiceEC2.NativeDryRun() {
		t.Error("ec2 supports native dry run")
	}
}

func TestOperations_Sorted(t *testing.T) {
	ops := Operations()
	for i := 1; i < len(ops); i++ {
		prev, cur := ops[i-1], ops[i]
		if prev.Service > cur.Service || (prev.Service == cur.Service && prev.Name > cur.Name) {
			t.Fatalf("operations not sorted at %d: %s %s before %s %s", i, prev.Service, prev.Name, cur.Service, cur.Name)
		}
	}
}

func TestErrors_Matching(t *testing.T) {
	dep := &DependencyError{Command: "aws ec2 describe-instances", Status: 255, Stderr: "boom"}
	if !errors.Is(dep, ErrDependencyFailure) {
		t.Error("expected DependencyError to match ErrDependencyFailure")
	}
	if dep.Error() != "aws ec2 describe-instances failed with status 255: boom" {
		t.Errorf("unexpected message: %s", dep.Error())
	}

	timeout := &DependencyError{Command: "aws sts get-caller-identity", Timeout: true}
	if timeout.Error() != "aws sts get-caller-identity failed: timed out" {
		t.Errorf("unexpected message: %s", timeout.Error())
	}

	parse := &ParseError{Call: "describe-stacks", Key: "Stacks"}
	if !errors.Is(parse, ErrParseFailure) {
		t.Error("expected ParseError to match ErrParseFailure")
	}

	dry := &DryRunError{Command: "aws cloudformation create-stack"}
	if !errors.Is(dry, ErrDryRunNotSupported) {
		t.Error("expected DryRunError to match ErrDryRunNotSupported")
	}
	line, ok := WouldExecute(dry)
	if !ok || line != "aws cloudformation create-stack" {
		t.Errorf("expected command line, got %q", line)
	}
}

func TestDecode(t *testing.T) {
	doc := map[string]any{
		"DBSnapshots": []any{
			map[string]any{
				"DBSnapshotIdentifier": "stage1-snap",
				"SnapshotCreateTime":   "2024-03-01T10:00:00.000Z",
				"AllocatedStorage":     float64(100),
			},
		},
	}

	var out struct {
		DBSnapshots []struct {
			DBSnapshotIdentifier string
			SnapshotCreateTime   time.Time
			AllocatedStorage     int
		}
	}
	if err := Decode("describe-db-snapshots", doc, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.DBSnapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(out.DBSnapshots))
	}
	snap := out.DBSnapshots[0]
	if snap.DBSnapshotIdentifier != "stage1-snap" {
		t.Errorf("expected stage1-snap, got %s", snap.DBSnapshotIdentifier)
	}
	if snap.SnapshotCreateTime.Year() != 2024 {
		t.Errorf("expected 2024, got %d", snap.SnapshotCreateTime.Year())
	}
	if snap.AllocatedStorage != 100 {
		t.Errorf("expected 100, got %d", snap.AllocatedStorage)
	}
}

func TestFieldAndStrings(t *testing.T) {
	doc := map[string]any{"Stacks": []any{"a", "b"}}

	if _, err := Field("describe-stacks", doc, "Missing"); !errors.Is(err, ErrParseFailure) {
		t.Errorf("expected parse failure, got %v", err)
	}
	items, err := List("describe-stacks", doc, "Stacks")
	if err != nil || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v (%v)", items, err)
	}
	names, err := Strings("describe-stacks", doc["Stacks"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "a" {
		t.Errorf("unexpected names: %v", names)
	}
	if names, err := Strings("describe-stacks", nil); err != nil || len(names) != 0 {
		t.Errorf("expected empty result for nil document, got %v (%v)", names, err)
	}
	if _, err := Strings("describe-stacks", map[string]any{}); !errors.Is(err, ErrParseFailure) {
		t.Errorf("expected parse failure, got %v", err)
	}
}
