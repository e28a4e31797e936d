package grid

// PageWindowSize is the number of page buttons shown at most.
const PageWindowSize = 5

// TotalPages returns ceil(total/perPage), at least 1.
func TotalPages(total, perPage int) int {
	if perPage < 1 {
		perPage = 1
	}
	return max(1, (total+perPage-1)/perPage)
}

// ClampPage bounds page to [1, TotalPages(total, perPage)].
func ClampPage(page, total, perPage int) int {
	return min(max(page, 1), TotalPages(total, perPage))
}

// PageBounds returns the half-open index range of page.
func PageBounds(page, total, perPage int) (start, end int) {
	perPage = max(perPage, 1)
	page = ClampPage(page, total, perPage)
	start = min((page-1)*perPage, total)
	end = min(page*perPage, total)
	return start, end
}

// PageWindow returns up to size contiguous page numbers centred on current
// where possible and shifted to stay within [1, total].
func PageWindow(current, total, size int) []int {
	if total < 1 || size < 1 {
		return nil
	}
	current = min(max(current, 1), total)
	start := max(1, current-size/2)
	end := start + size - 1
	if end > total {
		end = total
		start = max(1, end-size+1)
	}
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}
