package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/caisson-io/caisson/internal/provider"
)

// VPC

func (p *Provider) createVpc(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	cidr := provider.String(attrs, "cidr_block")
	out, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: &cidr,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	id := awssdk.ToString(out.Vpc.VpcId)

	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}

	return id, map[string]any{
		"id":         id,
		"cidr_block": awssdk.ToString(out.Vpc.CidrBlock),
	}, nil
}

func (p *Provider) readVpc(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidVpcID.NotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe VPC: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return nil, provider.ErrNotFound
	}
	vpc := out.Vpcs[0]
	return map[string]any{
		"id":         id,
		"cidr_block": awssdk.ToString(vpc.CidrBlock),
	}, nil
}

func (p *Provider) updateVpc(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":         id,
		"cidr_block": provider.String(attrs, "cidr_block"),
	}, nil
}

func (p *Provider) deleteVpc(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &id})
	if err != nil && !isAWSErr(err, "InvalidVpcID.NotFound") {
		return fmt.Errorf("failed to delete VPC: %w", err)
	}
	return nil
}

// Subnet

func (p *Provider) createSubnet(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:     awssdk.String(provider.String(attrs, "vpc_id")),
		CidrBlock: awssdk.String(provider.String(attrs, "cidr_block")),
	}
	if az := provider.String(attrs, "availability_zone"); az != "" {
		input.AvailabilityZone = &az
	}

	out, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create subnet: %w", err)
	}
	id := awssdk.ToString(out.Subnet.SubnetId)

	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}
	if provider.Bool(attrs, "map_public_ip_on_launch") {
		if err := p.setSubnetPublicIP(ctx, id, true); err != nil {
			return id, nil, err
		}
	}

	return id, map[string]any{
		"id":                      awssdk.ToString(out.Subnet.SubnetId),
		"vpc_id":                  awssdk.ToString(out.Subnet.VpcId),
		"cidr_block":              awssdk.ToString(out.Subnet.CidrBlock),
		"availability_zone":       awssdk.ToString(out.Subnet.AvailabilityZone),
		"map_public_ip_on_launch": provider.Bool(attrs, "map_public_ip_on_launch"),
	}, nil
}

func (p *Provider) readSubnet(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidSubnetID.NotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe subnet: %w", err)
	}
	if len(out.Subnets) == 0 {
		return nil, provider.ErrNotFound
	}
	sn := out.Subnets[0]
	return map[string]any{
		"id":                      id,
		"vpc_id":                  awssdk.ToString(sn.VpcId),
		"cidr_block":              awssdk.ToString(sn.CidrBlock),
		"availability_zone":       awssdk.ToString(sn.AvailabilityZone),
		"map_public_ip_on_launch": awssdk.ToBool(sn.MapPublicIpOnLaunch),
	}, nil
}

func (p *Provider) updateSubnet(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	if provider.Bool(attrs, "map_public_ip_on_launch") != provider.Bool(prior, "map_public_ip_on_launch") {
		if err := p.setSubnetPublicIP(ctx, id, provider.Bool(attrs, "map_public_ip_on_launch")); err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"id":                      id,
		"vpc_id":                  provider.String(attrs, "vpc_id"),
		"cidr_block":              provider.String(attrs, "cidr_block"),
		"availability_zone":       provider.String(attrs, "availability_zone"),
		"map_public_ip_on_launch": provider.Bool(attrs, "map_public_ip_on_launch"),
	}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: &id})
	if err != nil && !isAWSErr(err, "InvalidSubnetID.NotFound") {
		return fmt.Errorf("failed to delete subnet: %w", err)
	}
	return nil
}

func (p *Provider) setSubnetPublicIP(ctx context.Context, id string, value bool) error {
	_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            &id,
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: &value},
	})
	if err != nil {
		return fmt.Errorf("failed to modify subnet attribute: %w", err)
	}
	return nil
}

// Internet gateway

func (p *Provider) createInternetGateway(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	out, err := p.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create internet gateway: %w", err)
	}
	id := awssdk.ToString(out.InternetGateway.InternetGatewayId)

	vpcID := provider.String(attrs, "vpc_id")
	if vpcID != "" {
		_, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: &id,
			VpcId:             &vpcID,
		})
		if err != nil {
			return id, nil, fmt.Errorf("failed to attach internet gateway: %w", err)
		}
	}
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}

	return id, map[string]any{"id": id, "vpc_id": vpcID}, nil
}

func (p *Provider) readInternetGateway(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{id},
	})
	if err != nil {
		if isAWSErr(err, "InvalidInternetGatewayID.NotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe internet gateway: %w", err)
	}
	if len(out.InternetGateways) == 0 {
		return nil, provider.ErrNotFound
	}
	igw := out.InternetGateways[0]
	outputs := map[string]any{"id": id, "vpc_id": ""}
	if len(igw.Attachments) > 0 {
		outputs["vpc_id"] = awssdk.ToString(igw.Attachments[0].VpcId)
	}
	return outputs, nil
}

// updateInternetGateway moves the attachment when vpc_id changes. The
// gateway itself survives, so the ID is stable across the move.
func (p *Provider) updateInternetGateway(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	oldVpc := provider.String(prior, "vpc_id")
	newVpc := provider.String(attrs, "vpc_id")
	if oldVpc != newVpc {
		if oldVpc != "" {
			if err := p.detachInternetGateway(ctx, id, oldVpc); err != nil {
				return nil, err
			}
		}
		if newVpc != "" {
			_, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
				InternetGatewayId: &id,
				VpcId:             &newVpc,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to attach internet gateway: %w", err)
			}
		}
	}
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "vpc_id": newVpc}, nil
}

func (p *Provider) deleteInternetGateway(ctx context.Context, id string, prior map[string]any) error {
	if vpcID := provider.String(prior, "vpc_id"); vpcID != "" {
		if err := p.detachInternetGateway(ctx, id, vpcID); err != nil {
			return err
		}
	}
	_, err := p.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: &id})
	if err != nil && !isAWSErr(err, "InvalidInternetGatewayID.NotFound") {
		return fmt.Errorf("failed to delete internet gateway: %w", err)
	}
	return nil
}

func (p *Provider) detachInternetGateway(ctx context.Context, id, vpcID string) error {
	_, err := p.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
		InternetGatewayId: &id,
		VpcId:             &vpcID,
	})
	if err != nil && !isAWSErr(err, "InvalidInternetGatewayID.NotFound", "Gateway.NotAttached") {
		return fmt.Errorf("failed to detach internet gateway: %w", err)
	}
	return nil
}

// Route table

func (p *Provider) createRouteTable(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	vpcID := provider.String(attrs, "vpc_id")
	out, err := p.ec2Client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{VpcId: &vpcID})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create route table: %w", err)
	}
	id := awssdk.ToString(out.RouteTable.RouteTableId)

	routes, _ := attrs["routes"].([]any)
	for _, entry := range routes {
		route, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		input := &ec2.CreateRouteInput{
			RouteTableId:         &id,
			DestinationCidrBlock: awssdk.String(provider.String(route, "cidr_block")),
		}
		if gw := provider.String(route, "gateway_id"); gw != "" {
			input.GatewayId = &gw
		}
		if nat := provider.String(route, "nat_gateway_id"); nat != "" {
			input.NatGatewayId = &nat
		}
		if _, err := p.ec2Client.CreateRoute(ctx, input); err != nil {
			return id, nil, fmt.Errorf("failed to create route to %s: %w", provider.String(route, "cidr_block"), err)
		}
	}

	for _, subnetID := range provider.StringSlice(attrs, "subnet_ids") {
		_, err := p.ec2Client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: &id,
			SubnetId:     &subnetID,
		})
		if err != nil {
			return id, nil, fmt.Errorf("failed to associate route table with %s: %w", subnetID, err)
		}
	}

	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}

	return id, map[string]any{"id": id, "vpc_id": vpcID}, nil
}

func (p *Provider) readRouteTable(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidRouteTableID.NotFound") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe route table: %w", err)
	}
	if len(out.RouteTables) == 0 {
		return nil, provider.ErrNotFound
	}
	rt := out.RouteTables[0]
	return map[string]any{
		"id":     id,
		"vpc_id": awssdk.ToString(rt.VpcId),
	}, nil
}

func (p *Provider) updateRouteTable(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "vpc_id": provider.String(attrs, "vpc_id")}, nil
}

// deleteRouteTable drops subnet associations first; AWS refuses to delete
// an associated table.
func (p *Provider) deleteRouteTable(ctx context.Context, id string) error {
	out, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidRouteTableID.NotFound") {
			return nil
		}
		return fmt.Errorf("failed to describe route table: %w", err)
	}
	for _, rt := range out.RouteTables {
		for _, assoc := range rt.Associations {
			if awssdk.ToBool(assoc.Main) {
				continue
			}
			_, err := p.ec2Client.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: assoc.RouteTableAssociationId,
			})
			if err != nil && !isAWSErr(err, "InvalidAssociationID.NotFound") {
				return fmt.Errorf("failed to disassociate route table: %w", err)
			}
		}
	}

	_, err = p.ec2Client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: &id})
	if err != nil && !isAWSErr(err, "InvalidRouteTableID.NotFound") {
		return fmt.Errorf("failed to delete route table: %w", err)
	}
	return nil
}

// Security group

func (p *Provider) createSecurityGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	name := provider.String(attrs, "name")
	input := &ec2.CreateSecurityGroupInput{
		GroupName:   &name,
		Description: awssdk.String(provider.String(attrs, "description")),
	}
	if vpcID := provider.String(attrs, "vpc_id"); vpcID != "" {
		input.VpcId = &vpcID
	}

	out, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create security group: %w", err)
	}
	id := awssdk.ToString(out.GroupId)

	if err := p.syncSecurityGroupRules(ctx, id, attrs); err != nil {
		return id, nil, err
	}
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return id, nil, err
	}

	return id, map[string]any{"id": id, "name": name}, nil
}

func (p *Provider) readSecurityGroup(ctx context.Context, id string) (map[string]any, error) {
	out, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		if isAWSErr(err, "InvalidGroup.NotFound", "InvalidGroupId.Malformed") {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("failed to describe security group: %w", err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, provider.ErrNotFound
	}
	g := out.SecurityGroups[0]
	return map[string]any{
		"id":   id,
		"name": awssdk.ToString(g.GroupName),
	}, nil
}

func (p *Provider) updateSecurityGroup(ctx context.Context, id string, attrs, prior map[string]any) (map[string]any, error) {
	if err := p.syncSecurityGroupRules(ctx, id, attrs); err != nil {
		return nil, err
	}
	if err := p.applyEC2Tags(ctx, id, attrs); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "name": provider.String(attrs, "name")}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &id})
	if err != nil && !isAWSErr(err, "InvalidGroup.NotFound") {
		return fmt.Errorf("failed to delete security group: %w", err)
	}
	return nil
}

// syncSecurityGroupRules replaces the group's rules with the declared ones.
// Ingress is always reconciled; egress only when the declaration mentions
// it, so the AWS-default allow-all egress survives configs that omit the
// attribute.
func (p *Provider) syncSecurityGroupRules(ctx context.Context, id string, attrs map[string]any) error {
	out, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		return fmt.Errorf("failed to describe security group: %w", err)
	}
	if len(out.SecurityGroups) == 0 {
		return fmt.Errorf("security group %s disappeared during rule sync", id)
	}
	current := out.SecurityGroups[0]

	if len(current.IpPermissions) > 0 {
		_, err := p.ec2Client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       &id,
			IpPermissions: current.IpPermissions,
		})
		if err != nil {
			return fmt.Errorf("failed to revoke ingress rules: %w", err)
		}
	}
	if perms := ipPermissions(attrs, "ingress"); len(perms) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &id,
			IpPermissions: perms,
		})
		if err != nil {
			return fmt.Errorf("failed to authorize ingress rules: %w", err)
		}
	}

	if _, declared := attrs["egress"]; !declared {
		return nil
	}
	if len(current.IpPermissionsEgress) > 0 {
		_, err := p.ec2Client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
			GroupId:       &id,
			IpPermissions: current.IpPermissionsEgress,
		})
		if err != nil {
			return fmt.Errorf("failed to revoke egress rules: %w", err)
		}
	}
	if perms := ipPermissions(attrs, "egress"); len(perms) > 0 {
		_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &id,
			IpPermissions: perms,
		})
		if err != nil {
			return fmt.Errorf("failed to authorize egress rules: %w", err)
		}
	}
	return nil
}

func ipPermissions(attrs map[string]any, key string) []types.IpPermission {
	rules, _ := attrs[key].([]any)
	var perms []types.IpPermission
	for _, entry := range rules {
		rule, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		perm := types.IpPermission{
			IpProtocol: awssdk.String(provider.String(rule, "protocol")),
			FromPort:   awssdk.Int32(int32(provider.Int(rule, "from_port"))),
			ToPort:     awssdk.Int32(int32(provider.Int(rule, "to_port"))),
		}
		for _, cidr := range provider.StringSlice(rule, "cidr_blocks") {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: awssdk.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}

// applyEC2Tags pushes the declared tags onto an EC2-family resource.
// Existing tags with other keys are left in place.
func (p *Provider) applyEC2Tags(ctx context.Context, id string, attrs map[string]any) error {
	tags := provider.StringMap(attrs, "tags")
	if len(tags) == 0 {
		return nil
	}
	ec2Tags := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: awssdk.String(k), Value: awssdk.String(v)})
	}
	_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", id, err)
	}
	return nil
}
