package entity

// DefaultMaxLength mirrors the length budget of the original pipeline call.
const DefaultMaxLength = 512

// GenerationOptions bounds a single call to the generation capability.
type GenerationOptions struct {
	MaxLength          int
	NumReturnSequences int
}

func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		MaxLength:          DefaultMaxLength,
		NumReturnSequences: 1,
	}
}
