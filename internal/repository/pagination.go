package repository

import "gorm.io/gorm"

// maxListPageSize 单页最大条数，调用方未归一化时兜底
const maxListPageSize = 500

// pageWindow 将页码换算为 limit/offset，pageSize<=0 表示不分页
func pageWindow(page, pageSize int) (limit, offset int, ok bool) {
	if pageSize <= 0 {
		return 0, 0, false
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize, true
}

func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	limit, offset, ok := pageWindow(page, pageSize)
	if query == nil || !ok {
		return query
	}
	return query.Limit(limit).Offset(offset)
}
