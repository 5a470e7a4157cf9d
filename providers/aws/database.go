package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/caisson-io/caisson/internal/provider"
)

const (
	dbAvailableTimeout = 20 * time.Minute
	dbDeletedTimeout   = 20 * time.Minute
)

// DB subnet group

func (p *Provider) createDBSubnetGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := provider.String(attrs, "name")
	description := provider.String(attrs, "description")
	if description == "" {
		description = "Managed by caisson"
	}

	out, err := p.rdsClient.CreateDBSubnetGroup(ctx, &rds.CreateDBSubnetGroupInput{
		DBSubnetGroupName:        &name,
		DBSubnetGroupDescription: &description,
		SubnetIds:                provider.StringSlice(attrs, "subnet_ids"),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create db subnet group: %w", err)
	}

	return name, map[string]any{
		"id":   name,
		"name": name,
		"arn":  awssdk.ToString(out.DBSubnetGroup.DBSubnetGroupArn),
	}, nil
}

func (p *Provider) readDBSubnetGroup(ctx context.Context, name string) (map[string]any, error) {
	out, err := p.rdsClient.DescribeDBSubnetGroups(ctx, &rds.DescribeDBSubnetGroupsInput{
		DBSubnetGroupName: &name,
	})
	if err != nil {
		var nf *types.DBSubnetGroupNotFoundFault
		if errors.As(err, &nf) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe db subnet group: %w", err)
	}
	if len(out.DBSubnetGroups) == 0 {
		return nil, provider.ErrNotFound
	}
	g := out.DBSubnetGroups[0]
	return map[string]any{
		"id":   name,
		"name": name,
		"arn":  awssdk.ToString(g.DBSubnetGroupArn),
	}, nil
}

func (p *Provider) updateDBSubnetGroup(ctx context.Context, name string, attrs, prior map[string]any) (map[string]any, error) {
	input := &rds.ModifyDBSubnetGroupInput{
		DBSubnetGroupName: &name,
		SubnetIds:         provider.StringSlice(attrs, "subnet_ids"),
	}
	if description := provider.String(attrs, "description"); description != "" {
		input.DBSubnetGroupDescription = &description
	}
	out, err := p.rdsClient.ModifyDBSubnetGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to modify db subnet group: %w", err)
	}
	return map[string]any{
		"id":   name,
		"name": name,
		"arn":  awssdk.ToString(out.DBSubnetGroup.DBSubnetGroupArn),
	}, nil
}

func (p *Provider) deleteDBSubnetGroup(ctx context.Context, name string) error {
	_, err := p.rdsClient.DeleteDBSubnetGroup(ctx, &rds.DeleteDBSubnetGroupInput{DBSubnetGroupName: &name})
	if err != nil {
		var nf *types.DBSubnetGroupNotFoundFault
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("failed to delete db subnet group: %w", err)
	}
	return nil
}

// DB instance

func (p *Provider) createDBInstance(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	identifier := provider.String(attrs, "identifier")
	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: &identifier,
		Engine:               awssdk.String(provider.String(attrs, "engine")),
		DBInstanceClass:      awssdk.String(provider.String(attrs, "instance_class")),
		AllocatedStorage:     awssdk.Int32(int32(provider.Int(attrs, "allocated_storage"))),
		MasterUsername:       awssdk.String(provider.String(attrs, "username")),
		MasterUserPassword:   awssdk.String(provider.String(attrs, "password")),
	}
	if version := provider.String(attrs, "engine_version"); version != "" {
		input.EngineVersion = &version
	}
	if group := provider.String(attrs, "db_subnet_group_name"); group != "" {
		input.DBSubnetGroupName = &group
	}
	if groups := provider.StringSlice(attrs, "vpc_security_group_ids"); len(groups) > 0 {
		input.VpcSecurityGroupIds = groups
	}

	_, err := p.rdsClient.CreateDBInstance(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create db instance: %w", err)
	}

	if err := p.waitDBInstanceAvailable(ctx, identifier); err != nil {
		return identifier, nil, err
	}

	// The endpoint only exists once the instance is available.
	outputs, err := p.readDBInstance(ctx, identifier)
	if err != nil {
		return identifier, nil, err
	}
	return identifier, outputs, nil
}

func (p *Provider) readDBInstance(ctx context.Context, identifier string) (map[string]any, error) {
	out, err := p.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: &identifier,
	})
	if err != nil {
		var nf *types.DBInstanceNotFoundFault
		if errors.As(err, &nf) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe db instance: %w", err)
	}
	if len(out.DBInstances) == 0 {
		return nil, provider.ErrNotFound
	}
	db := out.DBInstances[0]

	outputs := map[string]any{
		"id":                identifier,
		"arn":               awssdk.ToString(db.DBInstanceArn),
		"instance_class":    awssdk.ToString(db.DBInstanceClass),
		"allocated_storage": int(awssdk.ToInt32(db.AllocatedStorage)),
	}
	if db.Endpoint != nil {
		address := awssdk.ToString(db.Endpoint.Address)
		port := int(awssdk.ToInt32(db.Endpoint.Port))
		outputs["address"] = address
		outputs["port"] = port
		outputs["endpoint"] = fmt.Sprintf("%s:%d", address, port)
	}
	return outputs, nil
}

func (p *Provider) updateDBInstance(ctx context.Context, identifier string, attrs, prior map[string]any) (map[string]any, error) {
	input := &rds.ModifyDBInstanceInput{
		DBInstanceIdentifier: &identifier,
		ApplyImmediately:     awssdk.Bool(true),
	}
	changed := false

	if class := provider.String(attrs, "instance_class"); class != "" && class != provider.String(prior, "instance_class") {
		input.DBInstanceClass = &class
		changed = true
	}
	if storage := provider.Int(attrs, "allocated_storage"); storage > 0 && storage != provider.Int(prior, "allocated_storage") {
		input.AllocatedStorage = awssdk.Int32(int32(storage))
		changed = true
	}
	// Prior outputs never echo the password, so a declared one is
	// re-applied on every in-place change.
	if password := provider.String(attrs, "password"); password != "" {
		input.MasterUserPassword = &password
		changed = true
	}
	if version := provider.String(attrs, "engine_version"); version != "" {
		input.EngineVersion = &version
		changed = true
	}
	if groups := provider.StringSlice(attrs, "vpc_security_group_ids"); len(groups) > 0 {
		input.VpcSecurityGroupIds = groups
		changed = true
	}

	if changed {
		if _, err := p.rdsClient.ModifyDBInstance(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to modify db instance: %w", err)
		}
		if err := p.waitDBInstanceAvailable(ctx, identifier); err != nil {
			return nil, err
		}
	}
	return p.readDBInstance(ctx, identifier)
}

func (p *Provider) deleteDBInstance(ctx context.Context, identifier string, prior map[string]any) error {
	_, err := p.rdsClient.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: &identifier,
		SkipFinalSnapshot:    awssdk.Bool(true),
	})
	if err != nil {
		var nf *types.DBInstanceNotFoundFault
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("failed to delete db instance: %w", err)
	}

	// The subnet group cannot be deleted while the instance lingers.
	waiter := rds.NewDBInstanceDeletedWaiter(p.rdsClient)
	err = waiter.Wait(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: &identifier}, dbDeletedTimeout)
	if err != nil {
		return fmt.Errorf("failed to wait for db instance deletion: %w", err)
	}
	return nil
}

func (p *Provider) waitDBInstanceAvailable(ctx context.Context, identifier string) error {
	waiter := rds.NewDBInstanceAvailableWaiter(p.rdsClient)
	err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: &identifier}, dbAvailableTimeout)
	if err != nil {
		return fmt.Errorf("failed to wait for db instance available: %w", err)
	}
	return nil
}
