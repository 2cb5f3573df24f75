// Package extraction contains the page extraction contract.
// A Provider turns a page URL and an item-container selector into the trimmed
// text of each item. Providers are tried in a fixed order by the application
// layer; this package only defines the shared types and errors.
package extraction
