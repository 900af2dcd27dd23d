package casing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"StackName", "stack_name"},
		{"DBInstanceIdentifier", "db_instance_identifier"},
		{"PublicIpAddress", "public_ip_address"},
		{"VpcId", "vpc_id"},
		{"Ipv6CidrBlock", "ipv6_cidr_block"},
		{"S3Key", "s3_key"},
		{"already_snake", "already_snake"},
		{"ARN", "arn"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SnakeCase(tt.in); got != tt.want {
				t.Errorf("SnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeKeys(t *testing.T) {
	doc := map[string]any{
		"Stacks": []any{
			map[string]any{
				"StackName": "stage1-app",
				"Tags":      []any{map[string]any{"Key": "OwnerTeam", "Value": "CoreOps"}},
			},
		},
		"NextToken": nil,
	}

	want := map[string]any{
		"stacks": []any{
			map[string]any{
				"stack_name": "stage1-app",
				"tags":       []any{map[string]any{"key": "OwnerTeam", "value": "CoreOps"}},
			},
		},
		"next_token": nil,
	}

	if diff := cmp.Diff(want, NormalizeKeys(doc)); diff != "" {
		t.Errorf("NormalizeKeys mismatch (-want +got):\n%s", diff)
	}
	if _, ok := doc["Stacks"]; !ok {
		t.Error("input document was modified")
	}
}

func TestNormalizeKeys_Scalars(t *testing.T) {
	for _, v := range []any{"StackName", 3.5, true, nil} {
		if diff := cmp.Diff(v, NormalizeKeys(v)); diff != "" {
			t.Errorf("scalar changed: %s", diff)
		}
	}
}
