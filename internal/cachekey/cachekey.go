// Package cachekey builds the deterministic textual keys the Config Cache
// uses. Opaque secrets are hashed
// before becoming part of a key.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSecret returns the lowercase hex SHA-256 of an opaque secret. Callers
// must never use the raw secret as a cache key.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func SystemAPIKeyByHash(secretHash string) string    { return "sys_api_key:key:" + secretHash }
func SystemAPIKeyByRefHash(secretHash string) string { return "sys_api_key:ref:" + secretHash }

func Alias(name string) string { return "alias:" + name }

func ProviderByID(id int64) string    { return fmt.Sprintf("provider:id:%d", id) }
func ProviderByKey(key string) string { return "provider:key:" + key }

func ModelByID(id int64) string { return fmt.Sprintf("model:id:%d", id) }
func ModelByName(providerKey, modelName string) string {
	return fmt.Sprintf("model:name:%s/%s", providerKey, modelName)
}

func ACPByID(id int64) string { return fmt.Sprintf("acp:id:%d", id) }

func ProviderKeys(providerID int64) string { return fmt.Sprintf("provider_keys:%d", providerID) }

func CustomFieldAssignments(entityID int64) string { return fmt.Sprintf("cfa:%d", entityID) }

func CustomFieldByID(id int64) string { return fmt.Sprintf("custom_field:id:%d", id) }

func BillingPlanByID(id int64) string { return fmt.Sprintf("billing_plan:id:%d", id) }
