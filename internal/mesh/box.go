package mesh

// Box returns the 12 triangles of an axis-aligned box spanning min..max.
func Box(min, max Vec3) []Triangle {
	v := [8]Vec3{
		{min.X, min.Y, min.Z}, {max.X, min.Y, min.Z}, {max.X, max.Y, min.Z}, {min.X, max.Y, min.Z},
		{min.X, min.Y, max.Z}, {max.X, min.Y, max.Z}, {max.X, max.Y, max.Z}, {min.X, max.Y, max.Z},
	}
	faces := [6][4]int{
		{0, 3, 2, 1}, // bottom
		{4, 5, 6, 7}, // top
		{0, 1, 5, 4},
		{1, 2, 6, 5},
		{2, 3, 7, 6},
		{3, 0, 4, 7},
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris,
			Triangle{v[f[0]], v[f[1]], v[f[2]]},
			Triangle{v[f[0]], v[f[2]], v[f[3]]},
		)
	}
	return tris
}
