package catalog

const productFields = `
  id
  handle
  title
  description
  images(first: 10) { edges { node { url altText } } }
  priceRange {
    minVariantPrice { amount currencyCode }
    maxVariantPrice { amount currencyCode }
  }
  options { name values }
  variants(first: 100) {
    edges {
      node {
        id
        title
        availableForSale
        price { amount currencyCode }
        selectedOptions { name value }
        image { url altText }
      }
    }
  }
`

const productByHandleQuery = `query ProductByHandle($handle: String!) {
  product(handle: $handle) {` + productFields + `}
}`

const productsQuery = `query Products($first: Int!) {
  products(first: $first) {
    edges { node {` + productFields + `} }
  }
}`
