package models

import "gorm.io/gorm"

// AutoMigrate creates tables in dependency order.
func AutoMigrate(db *gorm.DB) error {
	// no dependencies
	if err := db.AutoMigrate(&User{}); err != nil {
		return err
	}
	// depend on users
	if err := db.AutoMigrate(&ParentGuardian{}, &Therapist{}, &DeviceToken{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&Patient{}); err != nil {
		return err
	}
	// depend on several of the above
	return db.AutoMigrate(
		&Payment{},
		&TherapySession{},
		&Donation{},
		&Notification{},
		&SupportTicket{},
		&Blog{},
		&Medication{},
		&MedicationLog{},
	)
}
