package database

import (
	"log"

	"gorm.io/gorm"

	"carwash-ops-server/models"
)

// runMigrations creates or updates database tables
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Vehicle{},
		&models.Address{},
		&models.Order{},
		&models.OrderItem{},
		&models.Principal{},
		&models.Worker{},
		&models.WorkerAssignment{},
		&models.OperatorAlert{},
	); err != nil {
		return err
	}

	// Orders created before the version column existed start at 0
	if err := db.Exec("UPDATE orders SET version = 0 WHERE version IS NULL").Error; err != nil {
		return err
	}

	if err := migrateWorkerLocationTrigger(db); err != nil {
		return err
	}

	return nil
}

// workerLocationNotifySQL publishes one notification per position change on a
// channel dedicated to the worker, so listeners only receive what they asked for.
const workerLocationNotifySQL = `
CREATE OR REPLACE FUNCTION notify_worker_location() RETURNS trigger AS $$
BEGIN
	IF NEW.location_updated_at IS DISTINCT FROM OLD.location_updated_at THEN
		PERFORM pg_notify(
			'` + PositionChannelPrefix + `' || NEW.id,
			json_build_object(
				'worker_id', NEW.id,
				'latitude', NEW.latitude,
				'longitude', NEW.longitude,
				'updated_at', NEW.location_updated_at
			)::text
		);
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

// migrateWorkerLocationTrigger installs the row-change feed used by the location tracker
func migrateWorkerLocationTrigger(db *gorm.DB) error {
	if err := db.Exec(workerLocationNotifySQL).Error; err != nil {
		return err
	}
	if err := db.Exec("DROP TRIGGER IF EXISTS workers_location_notify ON workers").Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE TRIGGER workers_location_notify
		AFTER UPDATE OF latitude, longitude, location_updated_at ON workers
		FOR EACH ROW EXECUTE FUNCTION notify_worker_location()`).Error; err != nil {
		return err
	}

	log.Println("✅ Worker location trigger installed")
	return nil
}
