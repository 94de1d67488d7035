package services

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

// MemoryTTL is how long a customer summary is kept (default 30 days)
func MemoryTTL() time.Duration {
	days := 30
	if value := os.Getenv("MEMORY_TTL_DAYS"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			days = parsed
		}
	}
	return time.Duration(days) * 24 * time.Hour
}

// SaveCustomerSummary upserts the long-lived memory for a phone number.
// Sessions without a phone have nothing durable to key on, so they are skipped.
func SaveCustomerSummary(store storage.Store, phone, summary string) {
	if phone == "" || summary == "" {
		return
	}
	if err := store.SaveCustomerMemory(phone, summary, time.Now().Add(MemoryTTL())); err != nil {
		log.Printf("⚠️ Erro ao salvar memória do cliente %s: %v", phone, err)
		return
	}
	log.Printf("💾 Memória do cliente %s atualizada", phone)
}

// CustomerSummary returns the stored summary for a phone, or "" when absent
func CustomerSummary(store storage.Store, phone string) string {
	if phone == "" {
		return ""
	}
	memory, err := store.GetCustomerMemory(phone)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️ Erro ao buscar memória do cliente %s: %v", phone, err)
		}
		return ""
	}
	return memory.Summary
}
