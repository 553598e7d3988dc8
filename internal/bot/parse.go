package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// AddArgs holds the parsed arguments of the /add command.
type AddArgs struct {
	Keywords string
	MinPrice *float64
	MaxPrice *float64
}

// ParseAddArgs parses arguments for /add.
// Format: <keywords>[,<min>-<max>] where either bound may be omitted,
// e.g. "red shoes,10-50", "red shoes,10-", "red shoes,-50", "red shoes".
func ParseAddArgs(args string) (AddArgs, error) {
	parts := strings.SplitN(args, ",", 2)
	keywords := strings.TrimSpace(parts[0])
	if keywords == "" {
		return AddArgs{}, fmt.Errorf("keywords are required")
	}

	out := AddArgs{Keywords: keywords}
	if len(parts) == 1 || strings.TrimSpace(parts[1]) == "" {
		return out, nil
	}

	priceRange := strings.TrimSpace(parts[1])
	bounds := strings.SplitN(priceRange, "-", 2)
	if len(bounds) != 2 {
		return AddArgs{}, fmt.Errorf("price range must look like min-max, e.g. 10-50")
	}

	var err error
	if out.MinPrice, err = parseBound(bounds[0]); err != nil {
		return AddArgs{}, err
	}
	if out.MaxPrice, err = parseBound(bounds[1]); err != nil {
		return AddArgs{}, err
	}
	return out, nil
}

func parseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	return &v, nil
}
