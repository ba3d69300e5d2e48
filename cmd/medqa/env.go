package main

import (
	"os"
	"strconv"
	"strings"

	"medqa/internal/config"
)

func envStr(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string) int {
	n, _ := strconv.Atoi(envStr(key))
	return n
}

func envInt64(key string) int64 {
	n, _ := strconv.ParseInt(envStr(key), 10, 64)
	return n
}

func envFloat(key string) float64 {
	f, _ := strconv.ParseFloat(envStr(key), 64)
	return f
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(envStr(key))
	return b
}

// envConfig reads MEDQA_* variables. Unset or unparsable values stay zero.
func envConfig() config.Config {
	return config.Config{
		Addr:                   envStr("MEDQA_ADDR"),
		AssetsDir:              envStr("MEDQA_ASSETS_DIR"),
		ModelPath:              envStr("MEDQA_MODEL_PATH"),
		EmbedModelPath:         envStr("MEDQA_EMBED_MODEL_PATH"),
		IndexPath:              envStr("MEDQA_INDEX_PATH"),
		ConversationsDB:        envStr("MEDQA_CONVERSATIONS_DB"),
		DisableConversations:   envBool("MEDQA_DISABLE_CONVERSATIONS"),
		RetrievalK:             envInt("MEDQA_RETRIEVAL_K"),
		SimilarityCutoff:       envFloat("MEDQA_SIMILARITY_CUTOFF"),
		ContextTokens:          envInt("MEDQA_CONTEXT_TOKENS"),
		Threads:                envInt("MEDQA_THREADS"),
		GPULayers:              envInt("MEDQA_GPU_LAYERS"),
		LogLevel:               envStr("MEDQA_LOG_LEVEL"),
		CORSEnabled:            envBool("MEDQA_CORS_ENABLED"),
		CORSOrigins:            splitCSV(envStr("MEDQA_CORS_ORIGINS")),
		GenerateTimeoutSeconds: envInt64("MEDQA_GENERATE_TIMEOUT_SECONDS"),
		AssetWaitSeconds:       envInt64("MEDQA_ASSET_WAIT_SECONDS"),
	}
}

// splitCSV splits a comma-separated list, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
