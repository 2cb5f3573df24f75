// Package catalog contains the product catalog written by price imports:
// products, their ordered attribute groups and values, the pricing structure
// describing how the matrix is laid out, and the generic price rows.
package catalog
