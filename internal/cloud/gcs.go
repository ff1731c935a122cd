// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file covers Google Cloud Storage: the GCSObject reference, gs:// URI
// parsing and the GCSMirror used to copy cached media into a bucket so the
// model can read it by URI instead of inline bytes.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSObject is a simplified reference to a Google Cloud Storage object.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI renders the object as a gs:// URI.
func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI splits a gs://bucket/object URI.
//
// Inputs:
//   - uri: A URI of the form gs://bucket/path/to/object.
//
// Outputs:
//   - GCSObject: The bucket and object name.
//   - error: When the scheme is not gs or the bucket or object is missing.
func ParseGCSURI(uri string) (GCSObject, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return GCSObject{}, fmt.Errorf("invalid GCS URI format: %s", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("invalid GCS URI: unable to determine bucket and object from %s", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// GCSMirror copies cached media files into a bucket.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirror returns nil when no bucket is configured, which disables mirroring.
func NewGCSMirror(client *storage.Client, bucket string, prefix string) *GCSMirror {
	if client == nil || bucket == "" {
		return nil
	}
	return &GCSMirror{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Upload copies a local file to <prefix>/<objectName> and returns its gs:// URI.
//
// Inputs:
//   - ctx: Cancels the copy.
//   - localPath: The file to upload.
//   - objectName: The object name below the mirror prefix.
//   - mimeType: Stored as the object's content type.
func (m *GCSMirror) Upload(ctx context.Context, localPath string, objectName string, mimeType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	obj := GCSObject{Bucket: m.bucket, Name: path.Join(m.prefix, objectName), MIMEType: mimeType}
	wc := m.client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(ctx)
	wc.ContentType = mimeType
	if _, err = io.Copy(wc, f); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("write %s: %w", obj.URI(), err)
	}
	if err = wc.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", obj.URI(), err)
	}
	return obj.URI(), nil
}

// Delete removes a mirrored object. A missing object is not an error.
func (m *GCSMirror) Delete(ctx context.Context, uri string) error {
	obj, err := ParseGCSURI(uri)
	if err != nil {
		return err
	}
	err = m.client.Bucket(obj.Bucket).Object(obj.Name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}
