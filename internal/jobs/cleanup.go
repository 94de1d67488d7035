package jobs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/EncantoFlores/encanto-backend/internal/storage"
)

// CleanupJob purges expired sessions and customer memories on a schedule
type CleanupJob struct {
	store    storage.Store
	interval time.Duration
	stop     chan struct{}
}

// NewCleanupJob creates the cleanup scheduler. Interval comes from
// CLEANUP_INTERVAL_MINUTES, default 60.
func NewCleanupJob(store storage.Store) *CleanupJob {
	minutes := 60
	if value := os.Getenv("CLEANUP_INTERVAL_MINUTES"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	return &CleanupJob{
		store:    store,
		interval: time.Duration(minutes) * time.Minute,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic purge
func (j *CleanupJob) Start() {
	log.Printf("🧹 Job de limpeza iniciado (a cada %v)", j.interval)
	go j.run()
}

// Stop halts the scheduler
func (j *CleanupJob) Stop() {
	close(j.stop)
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.purge()
	for {
		select {
		case <-ticker.C:
			j.purge()
		case <-j.stop:
			log.Println("🧹 Job de limpeza encerrado")
			return
		}
	}
}

// purge runs one cleanup round; each expired session cascades through its
// messages and product history
func (j *CleanupJob) purge() {
	sessions, err := j.store.DeleteExpiredSessions()
	if err != nil {
		log.Printf("⚠️ Erro ao limpar sessões expiradas: %v", err)
	} else if sessions > 0 {
		log.Printf("🧹 %d sessões expiradas removidas", sessions)
	}

	memories, err := j.store.DeleteExpiredMemories()
	if err != nil {
		log.Printf("⚠️ Erro ao limpar memórias expiradas: %v", err)
	} else if memories > 0 {
		log.Printf("🧹 %d memórias expiradas removidas", memories)
	}
}
