// Package minio stores checkpoints on MinIO or any other S3-compatible
// server through minio-go, without the AWS SDK.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	store := miniostore.NewStore(client, "my-bucket", "walset")
//	cps := manifest.NewCheckpointStore(store)
package minio
