package memory

// dbscan clusters points by density: a point with at least minSamples
// neighbors within eps (itself included) is a core point, and clusters grow
// by expanding from core points. Returns clusters as index lists; noise
// points belong to no cluster. Distances come precomputed through distFn so
// the clustering itself never touches an embedding model.
func dbscan(n int, eps float64, minSamples int, distFn func(i, j int) float64) [][]int {
	const (
		unvisited = 0
		noise     = -1
	)
	labels := make([]int, n) // 0 = unvisited, -1 = noise, >0 = cluster id
	clusterId := 0

	neighborsOf := func(i int) []int {
		var neighbors []int
		for j := 0; j < n; j++ {
			if distFn(i, j) <= eps {
				neighbors = append(neighbors, j)
			}
		}
		return neighbors
	}

	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := neighborsOf(i)
		if len(neighbors) < minSamples {
			labels[i] = noise
			continue
		}

		clusterId++
		labels[i] = clusterId

		// expand: noise points reached from a core point join the cluster,
		// but only core points extend the frontier
		queue := append([]int{}, neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == noise {
				labels[j] = clusterId
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = clusterId
			jNeighbors := neighborsOf(j)
			if len(jNeighbors) >= minSamples {
				queue = append(queue, jNeighbors...)
			}
		}
	}

	clusters := make([][]int, clusterId)
	for i, label := range labels {
		if label > 0 {
			clusters[label-1] = append(clusters[label-1], i)
		}
	}
	return clusters
}
