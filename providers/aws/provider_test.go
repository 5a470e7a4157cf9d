package aws

import (
	"errors"
	"fmt"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_CoversResourceTypes(t *testing.T) {
	p := New()

	types := []string{
		"aws_vpc", "aws_subnet", "aws_internet_gateway", "aws_route_table",
		"aws_security_group", "aws_instance", "aws_lb", "aws_lb_target_group",
		"aws_lb_listener", "aws_db_subnet_group", "aws_db_instance",
	}
	for _, typ := range types {
		schema, err := p.Schema(typ)
		require.NoError(t, err, typ)
		assert.True(t, schema.IsComputed("id"), typ)
	}

	schema, err := p.Schema("aws_vpc")
	require.NoError(t, err)
	assert.True(t, schema.IsImmutable("cidr_block"))
	assert.False(t, schema.IsImmutable("tags"))

	schema, err = p.Schema("aws_db_instance")
	require.NoError(t, err)
	assert.True(t, schema.IsSensitive("password"))
	assert.True(t, schema.IsComputed("endpoint"))

	_, err = p.Schema("aws_quantum_computer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource type")
}

func TestIsAWSErr(t *testing.T) {
	notFound := &smithy.GenericAPIError{Code: "InvalidVpcID.NotFound", Message: "vpc-123 does not exist"}

	assert.True(t, isAWSErr(notFound, "InvalidVpcID.NotFound"))
	assert.True(t, isAWSErr(notFound, "SomethingElse", "InvalidVpcID.NotFound"))
	assert.False(t, isAWSErr(notFound, "InvalidSubnetID.NotFound"))

	// Wrapped API errors still match.
	wrapped := fmt.Errorf("failed to read VPC: %w", notFound)
	assert.True(t, isAWSErr(wrapped, "InvalidVpcID.NotFound"))

	assert.False(t, isAWSErr(errors.New("plain error"), "InvalidVpcID.NotFound"))
	assert.False(t, isAWSErr(nil, "InvalidVpcID.NotFound"))
}

func TestIPPermissions(t *testing.T) {
	attrs := map[string]any{
		"ingress": []any{
			map[string]any{
				"protocol":    "tcp",
				"from_port":   float64(80),
				"to_port":     float64(80),
				"cidr_blocks": []any{"0.0.0.0/0"},
			},
			map[string]any{
				"protocol":    "tcp",
				"from_port":   float64(5432),
				"to_port":     float64(5432),
				"cidr_blocks": []any{"10.0.0.0/16", "10.1.0.0/16"},
			},
		},
	}

	perms := ipPermissions(attrs, "ingress")
	require.Len(t, perms, 2)

	assert.Equal(t, "tcp", awssdk.ToString(perms[0].IpProtocol))
	assert.Equal(t, int32(80), awssdk.ToInt32(perms[0].FromPort))
	assert.Equal(t, int32(80), awssdk.ToInt32(perms[0].ToPort))
	require.Len(t, perms[0].IpRanges, 1)
	assert.Equal(t, "0.0.0.0/0", awssdk.ToString(perms[0].IpRanges[0].CidrIp))

	require.Len(t, perms[1].IpRanges, 2)
	assert.Equal(t, "10.1.0.0/16", awssdk.ToString(perms[1].IpRanges[1].CidrIp))

	assert.Empty(t, ipPermissions(attrs, "egress"))
	assert.Empty(t, ipPermissions(map[string]any{"ingress": "not a list"}, "ingress"))
}

func TestAtoi32(t *testing.T) {
	assert.Equal(t, int32(30), atoi32("30"))
	assert.Equal(t, int32(0), atoi32(""))
	assert.Equal(t, int32(0), atoi32("not a number"))
}

func TestSameStrings(t *testing.T) {
	assert.True(t, sameStrings([]string{"a", "b"}, []string{"a", "b"}))
	assert.True(t, sameStrings(nil, nil))
	assert.False(t, sameStrings([]string{"a"}, []string{"a", "b"}))
	assert.False(t, sameStrings([]string{"a", "b"}, []string{"b", "a"}))
}
