package config

// Lua global and field names understood by the parser and written by the generator.
const (
	luaGlobalPreflight = "preflight"

	luaFieldTransport = "transport"
	luaFieldInfra     = "infra"
	luaFieldToolchain = "toolchain"
	luaFieldPackage   = "package"

	luaFieldBackends       = "backends"
	luaFieldConnectTimeout = "connect_timeout"
	luaFieldTotalTimeout   = "total_timeout"

	luaFieldBaselineURL = "baseline_url"

	luaFieldManifestURL   = "manifest_url"
	luaFieldTriple        = "triple"
	luaFieldSigningKeyURL = "signing_key_url"

	luaFieldRepo         = "repo"
	luaFieldAsset        = "asset"
	luaFieldVariantAsset = "variant_asset"
	luaFieldAPIBase      = "api_base"
	luaFieldWebBase      = "web_base"
)

// knownFields lists the accepted keys of each sub-table of the preflight global.
var knownFields = map[string][]string{
	luaFieldTransport: {luaFieldBackends, luaFieldConnectTimeout, luaFieldTotalTimeout},
	luaFieldInfra:     {luaFieldBaselineURL},
	luaFieldToolchain: {luaFieldManifestURL, luaFieldTriple, luaFieldSigningKeyURL},
	luaFieldPackage:   {luaFieldRepo, luaFieldAsset, luaFieldVariantAsset, luaFieldAPIBase, luaFieldWebBase},
}
