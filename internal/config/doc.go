// Package config loads preflight's optional Lua configuration.
//
// # Overview
//
// Every setting has a default derived from the host platform (see Default), so
// preflight runs without any config file. A user file only needs to set what it
// changes. It defines a global preflight table:
//
//	preflight = {
//	  transport = { backends = { "native" }, connect_timeout = 5 },
//	  toolchain = { triple = platform.is_arm64 and "aarch64-unknown-linux-gnu" or nil },
//	  package   = { variant_asset = "" },
//	}
//
// Fields left nil keep their defaults. An empty string clears an optional field
// such as toolchain.signing_key_url or package.variant_asset.
//
// # Security Model
//
// User Lua runs in a sandbox (see sandboxLuaVM) without os, io, module loading,
// metatable access or the debug library. Evaluation is bounded by the caller's
// context, or DefaultParseTimeout when it has none, and files larger than
// MaxConfigSize are rejected. The read-only platform table from the platform
// package is injected before the file runs.
//
// preflight never reads credentials from its config. Token-like literals are
// reported through the logger (see DetectSensitiveData) and otherwise ignored.
//
// # Errors
//
// Lua errors, type mismatches and validation failures surface as *ParseError.
// Validation failures wrap a *ValidationError naming the offending field.
// FormatError strips Lua stack traces unless verbose output is requested.
//
// # Generating Configs
//
// Generator renders any Config back into Lua that parses to the same value,
// which is what `preflight --print-config` prints.
package config
