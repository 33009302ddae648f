// Package s3 stores checkpoints in Amazon S3 with aws-sdk-go-v2.
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "walset")
//	cps := manifest.NewCheckpointStore(store)
//
// S3 has no compare-and-swap on object writes, so two processes saving
// checkpoints under one prefix can overwrite each other's CURRENT. Wrap the
// store in a [DDBCommitStore] to commit CURRENT through a conditional
// DynamoDB write instead.
package s3
