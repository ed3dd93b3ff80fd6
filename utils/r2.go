// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"habit-companion/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

var r2Client *s3.Client
var r2Bucket string
var cdnBaseURL string

func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	cdnBaseURL = os.Getenv("CDN_BASE_URL")
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// ProofImageKey builds the R2 object key for a proof image:
// proofs/<habit-slug>/<uuid><ext>
func ProofImageKey(habitName, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("proofs/%s/%s%s", slug.Make(habitName), uuid.NewString(), ext)
}

// ValidateProofImage enforces the server's image limits before any upload:
// size cap and supported content types. The error text leads with the machine
// code the server itself would return, so handlers reuse one mapping.
func ValidateProofImage(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > models.ProofImageMaxBytes {
		return fmt.Errorf("image_too_large: %q is %d bytes (limit %d)",
			fileHeader.Filename, fileHeader.Size, models.ProofImageMaxBytes)
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !models.IsSupportedProofImage(contentType) {
		return fmt.Errorf("unsupported_image_format: %q (%s)", fileHeader.Filename, contentType)
	}
	return nil
}

// UploadProofImage uploads a proof image to R2 and returns the public URL the
// remote service expects in proof submissions.
func UploadProofImage(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	_, err = r2Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	url := fmt.Sprintf("%s/%s", cdnBaseURL, key)
	return url, nil
}
