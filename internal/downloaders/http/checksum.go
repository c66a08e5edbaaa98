package tronhttp

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, utils.DefaultBufferSize)); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyMD5 hashes path and compares against expected. The file is left in
// place on mismatch.
func VerifyMD5(path, expected string) error {
	actual, err := FileMD5(path)
	if err != nil {
		return err
	}
	return compareMD5(path, expected, actual)
}

func compareMD5(path, expected, actual string) error {
	if !strings.EqualFold(strings.TrimSpace(expected), actual) {
		return &utils.ChecksumMismatchError{Path: path, Expected: expected, Actual: actual}
	}
	log := utils.GetLogger("http/checksum")
	log.Info().Str("path", path).Str("md5", actual).Msg("checksum verified")
	return nil
}
