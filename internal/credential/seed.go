package credential

import "time"

// SeedDemoAccounts creates the demo reader accounts when the store is empty.
// It returns the number of accounts created.
func (s *Store) SeedDemoAccounts() (int, error) {
	count, err := s.db.CountAccounts()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	now := s.now()
	testUntil := now.Add(30 * 24 * time.Hour)
	proUntil := now.Add(90 * 24 * time.Hour)
	seeds := []CreateParams{
		{
			Username:   "test",
			Password:   "test123",
			Email:      "test@example.com",
			Name:       "Tarot Tester",
			Tier:       "test",
			PlanType:   "test",
			IsTest:     true,
			UsageLimit: 50,
			ValidFrom:  &now,
			ValidTo:    &testUntil,
		},
		{
			Username:   "pro",
			Password:   "pro123",
			Email:      "pro@example.com",
			Name:       "Tarot Pro",
			Tier:       "monthly",
			PlanType:   "monthly",
			UsageLimit: 200,
			ValidFrom:  &now,
			ValidTo:    &proUntil,
		},
	}
	for _, p := range seeds {
		if _, err := s.CreateAccount(p); err != nil {
			return 0, err
		}
	}
	s.logger.Info("Seeded demo accounts", "count", len(seeds))
	return len(seeds), nil
}
