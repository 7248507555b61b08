package model

var llama31_8B4bit = Descriptor{
	ID:      "llama-3.1-8b-4bit",
	Source:  "https://huggingface.co/mlx-community/Meta-Llama-3.1-8B-Instruct-4bit/resolve/main/model.safetensors",
	SHA256:  "replace-with-verified-sha256-from-release-manifest",
	License: "Llama 3.1 Community License",
}

// Llama31_8B4bit returns the release model. Its digest is a placeholder
// until a release manifest pins it, so startup refuses it unless
// overridden. Each call returns a fresh copy.
func Llama31_8B4bit() Descriptor {
	return llama31_8B4bit
}
