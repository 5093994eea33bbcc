package utils

import (
	"fmt"
	"math"
	"strings"
)

// MaskPosition represents a single position in a hashcat mask
type MaskPosition struct {
	Placeholder string // e.g., "?l", "?u", "?d", "?1", or a literal character
	IsLiteral   bool   // true if this is a literal character, false if it's a placeholder
}

// ParseMask parses a hashcat mask into individual positions.
// Hashcat placeholders are 2 characters: ?l, ?u, ?d, ?s, ?a, ?b, ?h, ?H
// and the custom charsets ?1-?4. Everything else is treated as a literal
// character.
func ParseMask(mask string) ([]MaskPosition, error) {
	if mask == "" {
		return nil, fmt.Errorf("mask cannot be empty")
	}

	var positions []MaskPosition
	i := 0

	for i < len(mask) {
		if mask[i] == '?' {
			// Check if there's a next character
			if i+1 >= len(mask) {
				return nil, fmt.Errorf("incomplete placeholder at end of mask")
			}

			// Get the placeholder (2 characters)
			placeholder := mask[i : i+2]

			// Validate placeholder
			if !isValidPlaceholder(placeholder) {
				return nil, fmt.Errorf("invalid placeholder: %s", placeholder)
			}

			positions = append(positions, MaskPosition{
				Placeholder: placeholder,
				IsLiteral:   false,
			})

			i += 2 // Skip both characters of the placeholder
		} else {
			// Literal character
			positions = append(positions, MaskPosition{
				Placeholder: string(mask[i]),
				IsLiteral:   true,
			})
			i++
		}
	}

	return positions, nil
}

// isValidPlaceholder checks if a 2-character string is a valid hashcat placeholder
func isValidPlaceholder(placeholder string) bool {
	if len(placeholder) != 2 || placeholder[0] != '?' {
		return false
	}

	// Valid second characters: l, u, d, s, a, b, h, H, 1-4
	switch placeholder[1] {
	case 'l', 'u', 'd', 's', 'a', 'b', 'h', 'H':
		return true
	case '1', '2', '3', '4':
		return true
	default:
		return false
	}
}

// GenerateIncrementLayers generates masks for each length from min to max.
// For increment mode: returns shortest to longest.
// For increment_inverse mode: returns longest to shortest.
func GenerateIncrementLayers(mask string, minLength int, maxLength int, isInverse bool) ([]string, error) {
	if minLength < 1 {
		return nil, fmt.Errorf("min_length must be at least 1")
	}

	if maxLength < minLength {
		return nil, fmt.Errorf("max_length (%d) must be >= min_length (%d)", maxLength, minLength)
	}

	// Parse the mask into positions
	positions, err := ParseMask(mask)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mask: %w", err)
	}

	maskLength := len(positions)

	// Validate that min/max don't exceed mask length
	if minLength > maskLength {
		return nil, fmt.Errorf("min_length (%d) exceeds mask length (%d)", minLength, maskLength)
	}

	// Cap maxLength at mask length
	if maxLength > maskLength {
		maxLength = maskLength
	}

	// Generate layer masks
	var layers []string
	for length := minLength; length <= maxLength; length++ {
		layerMask := buildMaskFromPositions(positions[:length])
		layers = append(layers, layerMask)
	}

	// Reverse for increment_inverse mode (longest first)
	if isInverse {
		for i, j := 0, len(layers)-1; i < j; i, j = i+1, j-1 {
			layers[i], layers[j] = layers[j], layers[i]
		}
	}

	return layers, nil
}

// buildMaskFromPositions reconstructs a mask string from positions
func buildMaskFromPositions(positions []MaskPosition) string {
	var sb strings.Builder
	for _, pos := range positions {
		sb.WriteString(pos.Placeholder)
	}
	return sb.String()
}

// GetMaskLength returns the number of positions in a mask (not the string length)
func GetMaskLength(mask string) (int, error) {
	positions, err := ParseMask(mask)
	if err != nil {
		return 0, err
	}
	return len(positions), nil
}

// CharsetSize returns the expanded size of a custom charset definition.
// Charset definitions may nest builtin placeholders: "?l?d" expands to 36,
// "abc?d" to 13. Literal characters count one each.
func CharsetSize(charset string) (int64, error) {
	if charset == "" {
		return 0, fmt.Errorf("charset cannot be empty")
	}

	positions, err := ParseMask(charset)
	if err != nil {
		return 0, fmt.Errorf("failed to parse charset: %w", err)
	}

	var size int64
	for _, pos := range positions {
		if pos.IsLiteral {
			size++
			continue
		}
		builtin, ok := builtinCharsetSize(pos.Placeholder)
		if !ok {
			return 0, fmt.Errorf("charset definition may not reference custom charset %s", pos.Placeholder)
		}
		size += builtin
	}

	return size, nil
}

// CalculateEffectiveKeyspace calculates the total number of candidates for a
// mask by multiplying the charset size for each position. Literal positions
// are fixed and don't multiply. customCharsets supplies the definitions for
// ?1-?4 in order; referencing an undefined custom charset is an error.
// For example: ?l?l = 26 * 26 = 676, ?l?d = 26 * 10 = 260.
func CalculateEffectiveKeyspace(mask string, customCharsets []string) (int64, error) {
	positions, err := ParseMask(mask)
	if err != nil {
		return 0, fmt.Errorf("failed to parse mask: %w", err)
	}

	var keyspace int64 = 1
	for _, pos := range positions {
		if pos.IsLiteral {
			// Literal characters don't multiply keyspace (they're fixed)
			continue
		}

		size, err := placeholderSize(pos.Placeholder, customCharsets)
		if err != nil {
			return 0, err
		}
		if size <= 0 {
			return 0, fmt.Errorf("placeholder %s has empty charset", pos.Placeholder)
		}

		if keyspace > math.MaxInt64/size {
			return 0, fmt.Errorf("keyspace overflow for mask %s", mask)
		}
		keyspace *= size
	}

	return keyspace, nil
}

// CalculateIncrementKeyspace sums the keyspace of every increment layer of a
// mask between minLength and maxLength.
func CalculateIncrementKeyspace(mask string, minLength, maxLength int, customCharsets []string) (int64, error) {
	layers, err := GenerateIncrementLayers(mask, minLength, maxLength, false)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, layer := range layers {
		layerSpace, err := CalculateEffectiveKeyspace(layer, customCharsets)
		if err != nil {
			return 0, err
		}
		if total > math.MaxInt64-layerSpace {
			return 0, fmt.Errorf("keyspace overflow for incremented mask %s", mask)
		}
		total += layerSpace
	}

	return total, nil
}

// placeholderSize resolves one mask placeholder to its charset size
func placeholderSize(placeholder string, customCharsets []string) (int64, error) {
	if size, ok := builtinCharsetSize(placeholder); ok {
		return size, nil
	}

	// Custom charsets ?1-?4 index into the supplied definitions
	idx := int(placeholder[1] - '1')
	if idx < 0 || idx >= len(customCharsets) || customCharsets[idx] == "" {
		return 0, fmt.Errorf("mask references undefined custom charset %s", placeholder)
	}
	return CharsetSize(customCharsets[idx])
}

// builtinCharsetSize returns the size of a builtin hashcat charset
func builtinCharsetSize(placeholder string) (int64, bool) {
	switch placeholder {
	case "?l": // lowercase letters (a-z)
		return 26, true
	case "?u": // uppercase letters (A-Z)
		return 26, true
	case "?d": // digits (0-9)
		return 10, true
	case "?s": // special characters
		return 33, true
	case "?a": // all printable ASCII
		return 95, true
	case "?b": // all bytes (0x00-0xff)
		return 256, true
	case "?h": // lowercase hex (0-9a-f)
		return 16, true
	case "?H": // uppercase hex (0-9A-F)
		return 16, true
	default:
		return 0, false
	}
}
