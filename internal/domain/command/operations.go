package command

import (
	"fmt"
	"sort"
)

// OperationSpec is the allow-list entry for one service operation.
type OperationSpec struct {
	Service  Service
	Name     string
	Options  []string
	Mutating bool
}

// commonOptions are accepted by every operation.
var commonOptions = []string{"query"}

// Allows reports whether the option name is accepted by the operation.
func (s OperationSpec) Allows(name string) bool {
	flag := FlagName(name)
	for _, allowed := range commonOptions {
		if FlagName(allowed) == flag {
			return true
		}
	}
	for _, allowed := range s.Options {
		if FlagName(allowed) == flag {
			return true
		}
	}
	return false
}

func op(service Service, name string, mutating bool, options ...string) OperationSpec {
	return OperationSpec{Service: service, Name: name, Options: options, Mutating: mutating}
}

var operations = index(
	op(ServiceCloudFormation, "describe-stacks", false, "stack_name"),
	op(ServiceCloudFormation, "describe-stack-events", false, "stack_name"),
	op(ServiceCloudFormation, "list-stacks", false, "stack_status_filter"),
	op(ServiceCloudFormation, "create-stack", true,
		"stack_name", "template_url", "template_body", "parameters", "capabilities",
		"tags", "disable_rollback", "timeout_in_minutes"),
	op(ServiceCloudFormation, "delete-stack", true, "stack_name"),

	op(ServiceEC2, "describe-instances", false, "instance_ids", "filters"),
	op(ServiceEC2, "describe-security-groups", false, "group_ids", "group_names", "filters"),
	op(ServiceEC2, "describe-regions", false, "all_regions"),
	op(ServiceEC2, "delete-security-group", true, "group_id", "group_name"),
	op(ServiceEC2, "revoke-security-group-ingress", true,
		"group_id", "group_name", "ip_permissions", "protocol", "port", "cidr", "source_group"),

	op(ServiceAutoScaling, "describe-auto-scaling-groups", false, "auto_scaling_group_names"),
	op(ServiceAutoScaling, "update-auto-scaling-group", true,
		"auto_scaling_group_name", "min_size", "max_size", "desired_capacity"),

	op(ServiceRDS, "describe-db-instances", false, "db_instance_identifier"),
	op(ServiceRDS, "describe-db-snapshots", false,
		"db_instance_identifier", "db_snapshot_identifier", "snapshot_type"),
	op(ServiceRDS, "describe-db-security-groups", false, "db_security_group_name"),

	op(ServiceS3, "list-buckets", false),
	op(ServiceS3, "get-bucket-tagging", false, "bucket"),
	op(ServiceS3, "list-objects-v2", false, "bucket", "prefix", "delimiter"),
	op(ServiceS3, "put-bucket-tagging", true, "bucket", "tagging"),

	op(ServiceElastiCache, "describe-cache-clusters", false, "cache_cluster_id"),
	op(ServiceElastiCache, "describe-cache-security-groups", false, "cache_security_group_name"),

	op(ServiceSTS, "get-caller-identity", false),
)

func index(specs ...OperationSpec) map[Service]map[string]OperationSpec {
	m := make(map[Service]map[string]OperationSpec)
	for _, s := range specs {
		if m[s.Service] == nil {
			m[s.Service] = make(map[string]OperationSpec)
		}
		m[s.Service][s.Name] = s
	}
	return m
}

// Lookup returns the allow-list entry for a service operation.
func Lookup(service Service, operation string) (OperationSpec, error) {
	ops, ok := operations[service]
	if !ok {
		return OperationSpec{}, fmt.Errorf("%w: service %q", ErrUnknownOperation, service)
	}
	spec, ok := ops[operation]
	if !ok {
		return OperationSpec{}, fmt.Errorf("%w: %s %s", ErrUnknownOperation, service, operation)
	}
	return spec, nil
}

// Operations lists every allowed operation ordered by service and name.
func Operations() []OperationSpec {
	var out []OperationSpec
	for _, ops := range operations {
		for _, s := range ops {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Name < out[j].Name
	})
	return out
}
