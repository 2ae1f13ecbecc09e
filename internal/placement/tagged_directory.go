package placement

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	log "github.com/sirupsen/logrus"
)

// Resource tags read by TaggedDirectory.
const (
	ResourceTagRole      = "zblob:role"
	ResourceTagServiceID = "zblob:service_id"
	ResourceTagRack      = "zblob:rack"
)

// TaggingAPI is the part of the tagging client used for discovery.
type TaggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// TaggedDirectory discovers S3 buckets acting as chunk nodes through their
// resource tags: every bucket tagged zblob:role=<role> is a service.
type TaggedDirectory struct {
	client TaggingAPI
}

// NewTaggedDirectory creates a directory backed by the Resource Groups Tagging API
func NewTaggedDirectory(client TaggingAPI) *TaggedDirectory {
	return &TaggedDirectory{client: client}
}

// List returns the tagged buckets of a role
func (d *TaggedDirectory) List(ctx context.Context, role string) ([]ServiceInfo, error) {
	input := &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: []string{"s3:bucket"},
		TagFilters: []types.TagFilter{
			{Key: aws.String(ResourceTagRole), Values: []string{role}},
		},
	}

	var services []ServiceInfo
	for {
		result, err := d.client.GetResources(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to discover %s services: %w", role, err)
		}

		for _, mapping := range result.ResourceTagMappingList {
			bucket := bucketFromARN(aws.ToString(mapping.ResourceARN))
			if bucket == "" {
				log.Warnf("Ignoring tagged resource %s", aws.ToString(mapping.ResourceARN))
				continue
			}
			tags := map[string]string{TagServiceID: bucket, TagVolume: bucket}
			for _, tag := range mapping.Tags {
				switch aws.ToString(tag.Key) {
				case ResourceTagServiceID:
					tags[TagServiceID] = aws.ToString(tag.Value)
				case ResourceTagRack:
					tags[TagRack] = aws.ToString(tag.Value)
				}
			}
			services = append(services, ServiceInfo{Addr: "s3://" + bucket, Tags: tags})
		}

		if aws.ToString(result.PaginationToken) == "" {
			break
		}
		input.PaginationToken = result.PaginationToken
	}

	return services, nil
}

// bucketFromARN extracts the bucket name from arn:aws:s3:::bucket
func bucketFromARN(arn string) string {
	const prefix = ":s3:::"
	i := strings.Index(arn, prefix)
	if i < 0 {
		return ""
	}
	return arn[i+len(prefix):]
}
