package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"carwash-ops-server/config"
)

// CloudinaryUploader stores identity documents in Cloudinary
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cfg config.CloudinaryConfig) (*CloudinaryUploader, error) {
	if !cfg.Enabled() {
		return nil, ErrUploadUnavailable
	}

	cloudinaryURL := fmt.Sprintf("cloudinary://%s:%s@%s", cfg.APIKey, cfg.APISecret, cfg.CloudName)
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("initialize cloudinary: %w", err)
	}
	log.Printf("🔧 Using Cloudinary URL: cloudinary://%s:***@%s", cfg.APIKey, cfg.CloudName)

	return &CloudinaryUploader{cld: cld, folder: cfg.Folder}, nil
}

func (u *CloudinaryUploader) UploadIdentityDocument(ctx context.Context, workerID, filename string, file io.Reader) (string, error) {
	overwrite := true
	unique := true
	res, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         u.folder + "/" + workerID,
		PublicID:       strings.TrimSuffix(filename, filepath.Ext(filename)),
		Overwrite:      &overwrite,
		UniqueFilename: &unique,
		ResourceType:   "auto",
	})
	if err != nil {
		return "", err
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", res.Error.Message)
	}

	log.Printf("✅ Identity document for worker %s uploaded: %s", workerID, res.SecureURL)
	return res.SecureURL, nil
}
