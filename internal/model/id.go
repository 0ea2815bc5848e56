package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IDType string

const (
	IDTypeTask   IDType = "task"
	IDTypePlan   IDType = "plan"
	IDTypeMemory IDType = "mem"
)

var validIDTypes = map[IDType]bool{
	IDTypeTask:   true,
	IDTypePlan:   true,
	IDTypeMemory: true,
}

var idRegex = regexp.MustCompile(`^(task|plan|mem)_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateID returns "<type>_<unix seconds>_<8 hex>". The hex suffix comes
// from a random UUID.
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}

	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	hexStr := strings.ReplaceAll(u.String(), "-", "")[:8]

	return fmt.Sprintf("%s_%010d_%s", idType, time.Now().Unix(), hexStr), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

// ParseIDTimestamp returns the creation time encoded in id.
func ParseIDTimestamp(id string) (time.Time, error) {
	if !ValidateID(id) {
		return time.Time{}, fmt.Errorf("invalid ID format: %s", id)
	}
	// 10 timestamp digits sit between the two underscores
	tsStr := id[len(id)-19 : len(id)-9]
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from ID %s: %w", id, err)
	}
	return time.Unix(ts, 0), nil
}
