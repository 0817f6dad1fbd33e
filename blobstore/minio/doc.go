// Package minio stores index files in MinIO or another S3-compatible
// service (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false, "indexes", "books")
package minio
