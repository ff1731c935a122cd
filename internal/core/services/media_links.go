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

// Package services contains the business logic of an ad analysis run.
// This file defines the MediaLinkService, which generates secure,
// time-limited URLs for cached media that was mirrored to Google Cloud
// Storage (GCS), so a client can preview an asset without credentials.
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
)

// MediaLinkService signs GET URLs for mirrored cache entries.
type MediaLinkService struct {
	StorageClient *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient     *credentials.IamCredentialsClient // Signs URLs when no local key is available.
	SignerEmail   string                            // The service account email used to sign URLs.
	Expires       time.Duration                     // How long a signed URL stays valid.
}

// NewMediaLinkService returns nil when there is no storage client, which
// disables signed URLs.
func NewMediaLinkService(client *storage.Client, iam *credentials.IamCredentialsClient, signerEmail string, expires time.Duration) *MediaLinkService {
	if client == nil {
		return nil
	}
	if expires <= 0 {
		expires = 15 * time.Minute
	}
	return &MediaLinkService{StorageClient: client, IAMClient: iam, SignerEmail: signerEmail, Expires: expires}
}

// GenerateSignedURL creates a V4 signed GET URL for a gs:// URI. When a
// signer service account is configured, the IAM Credentials API signs the
// request so no private key has to be present on the host.
func (s *MediaLinkService) GenerateSignedURL(ctx context.Context, gcsURI string) (string, error) {
	obj, err := cloud.ParseGCSURI(gcsURI)
	if err != nil {
		return "", err
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.Expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			}
			resp, err := s.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).Object(%q).SignedURL: %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}
