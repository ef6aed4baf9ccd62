package repository

import "gorm.io/gorm"

// paginate limits a query to one page. page is 1-based.
func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

// listPage counts the filtered rows of q, then loads one page of them into dest
func listPage(q *gorm.DB, page, limit int, order string, dest interface{}) (int64, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	err := q.Scopes(paginate(page, limit)).Order(order).Find(dest).Error
	return total, err
}
